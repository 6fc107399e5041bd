// Copyright 2026 The Subconscious Systems Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package auth provides credential handling for the Subconscious API
// client. It covers the credential types the API accepts (API keys,
// bearer tokens, and JWTs) and converts them to request headers. Token
// issuance and refresh flows are out of scope; callers supply credentials
// they already hold.
package auth

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwt"
)

// CredentialType represents the type of credentials.
type CredentialType string

// Credential types.
const (
	CredentialTypeAPIKey CredentialType = "api_key"
	CredentialTypeBearer CredentialType = "bearer"
	CredentialTypeJWT    CredentialType = "jwt"
)

// Credentials represents authentication credentials for the API.
type Credentials struct {
	Type        CredentialType `json:"type"`
	APIKey      string         `json:"api_key,omitempty"`
	AccessToken string         `json:"access_token,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
}

// APIKey returns credentials for a static API key.
func APIKey(key string) *Credentials {
	return &Credentials{
		Type:   CredentialTypeAPIKey,
		APIKey: key,
	}
}

// Bearer returns credentials for a bearer token with an optional expiry.
func Bearer(accessToken string, expiresAt *time.Time) *Credentials {
	return &Credentials{
		Type:        CredentialTypeBearer,
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
	}
}

// ParseJWT builds credentials from a JWT string, reading the expiry from
// the token's exp claim. The signature is not verified; validation is the
// server's job, the client only needs the expiry for local staleness
// checks.
func ParseJWT(tokenString string) (*Credentials, error) {
	token, err := jwt.Parse([]byte(tokenString), jwt.WithValidate(false), jwt.WithVerify(false))
	if err != nil {
		return nil, fmt.Errorf("parse JWT: %w", err)
	}

	creds := &Credentials{
		Type:        CredentialTypeJWT,
		AccessToken: tokenString,
	}
	if exp, ok := token.Expiration(); ok && !exp.IsZero() {
		creds.ExpiresAt = &exp
	}
	return creds, nil
}

// IsExpired checks if the credentials are expired.
func (c *Credentials) IsExpired() bool {
	if c.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*c.ExpiresAt)
}

// IsValid checks if the credentials carry a usable, unexpired secret.
func (c *Credentials) IsValid() bool {
	if c.IsExpired() {
		return false
	}
	switch c.Type {
	case CredentialTypeAPIKey:
		return c.APIKey != ""
	case CredentialTypeBearer, CredentialTypeJWT:
		return c.AccessToken != ""
	default:
		return false
	}
}

// ToAuthHeader converts credentials to an Authorization header value.
func (c *Credentials) ToAuthHeader() (string, error) {
	if !c.IsValid() {
		return "", fmt.Errorf("credentials are not valid")
	}

	switch c.Type {
	case CredentialTypeAPIKey:
		return "Bearer " + c.APIKey, nil
	case CredentialTypeBearer, CredentialTypeJWT:
		return "Bearer " + c.AccessToken, nil
	default:
		return "", fmt.Errorf("unsupported credential type for auth header: %s", c.Type)
	}
}
