package models

import "encoding/json"

// LoginResponse is the body of POST host/login.json. Version doubles
// as the success marker: a 200 without it is treated as malformed.
// Servers running with OPT_USE_AUTH disabled return no tokens at all.
type LoginResponse struct {
	Version               string  `json:"version"`
	APIVersion            string  `json:"apiversion"`
	AccessToken           string  `json:"access_token"`
	RefreshToken          string  `json:"refresh_token"`
	AccessTokenExpiresIn  FlexInt `json:"access_token_expires_in"`
	RefreshTokenExpiresIn FlexInt `json:"refresh_token_expires_in"`
}

// HostVersion is the body of GET host/getVersion.json, used both as
// the version command and as a token liveness probe.
type HostVersion struct {
	Version    string `json:"version"`
	APIVersion string `json:"apiversion"`
}

// ErrorMessage digs a human-readable message out of an error response
// body. The server is inconsistent: sometimes {"message": ...},
// sometimes {"data": {"message": ...}}. Returns "" when neither shape
// matches.
func ErrorMessage(body []byte) string {
	var flat struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && flat.Message != "" {
		return flat.Message
	}

	var nested struct {
		Data struct {
			Message string `json:"message"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &nested); err == nil {
		return nested.Data.Message
	}
	return ""
}
