package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on inbound requests.
const AccessTokenHeaderName = "access_token"

// AmountPrecision is the number of decimal places the ledger keeps for
// asset amounts (one stroop is 10^-7).
const AmountPrecision = 7
