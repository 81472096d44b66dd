// Package config loads walletctl settings.
//
// Sources, in increasing priority: built-in defaults, the JSON file named by
// --config, and the command's own flags.
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "request_timeout": "90s",
//	  "session_file": "/home/me/.stellarkeeper/session.json"
//	}
package config
