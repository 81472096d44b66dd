package logging

import (
	"strings"

	"github.com/stellar/go/strkey"
)

// Redacted replaces the value of any attribute that may carry key material
// or credentials.
const Redacted = "[REDACTED]"

var secretKeys = map[string]struct{}{
	"seed":          {},
	"secret":        {},
	"secret_key":    {},
	"private_key":   {},
	"passphrase":    {},
	"password":      {},
	"pin":           {},
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
}

func isSecret(key string, v any) bool {
	if _, ok := secretKeys[strings.ToLower(key)]; ok {
		return true
	}
	s, ok := v.(string)
	return ok && strkey.IsValidEd25519SecretSeed(s)
}

// redactArgs returns args with secret values masked. The input slice is not
// modified. A trailing key without a value is kept as is.
func redactArgs(args []any) []any {
	var out []any
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok || !isSecret(key, args[i+1]) {
			continue
		}
		if out == nil {
			out = append([]any(nil), args...)
		}
		out[i+1] = Redacted
	}
	if out == nil {
		return args
	}
	return out
}
