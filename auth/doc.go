// Package auth provides credential utilities for provider integrations.
//
// This package includes:
//   - API key minting and format checks for keys the engine presents
//     to provider gateways
//   - JWT service token generation and validation (HS256)
//   - Secret digesting and constant-time verification for storage
//
// # Service tokens
//
//	cfg := auth.JWTConfig{
//	    Secret: []byte("your-32-byte-or-longer-secret-key"),
//	    Issuer: "quorum",
//	}
//	token, err := auth.GenerateServiceToken(cfg, "openai")
//
// # API keys
//
//	key, err := auth.MintAPIKey()
//	// key.Secret goes to the provider once; store key.Digest and
//	// log key.Fingerprint
package auth
