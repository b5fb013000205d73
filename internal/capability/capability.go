// Package capability mints and verifies the join token a core or broker
// presents to its parent on connect: federation name, node role, and an
// expiry, signed with HS256. Generalized from the teacher's
// CapabilityManager (protocol/go/capability.go), which signs MCP tool-scope
// tokens the same way — here the "scope" is a federation join rather than a
// tool invocation, and "permissions" collapses to a single node role
// (broker, core, root).
package capability

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/timmyreynolds/HELICS/internal/ids"
)

// JoinClaims is the token body a node presents when negotiating identity
// with its parent.
type JoinClaims struct {
	jwt.RegisteredClaims
	Federation string `json:"federation"`
	Role       string `json:"role"`
}

// Manager signs and verifies join tokens for one federation.
type Manager struct {
	signingKey []byte
}

// NewManager returns a Manager keyed by signingKey. An empty key is valid
// for single-process reference deployments where a symmetric secret is
// generated per run rather than distributed out of band.
func NewManager(signingKey []byte) *Manager {
	return &Manager{signingKey: signingKey}
}

// GenerateKey returns a random 32-byte HS256 signing key, hex-encoded so it
// can be passed through a config file or environment variable.
func GenerateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("capability: generating signing key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Issue mints a join token for nodeName acting as role within federation,
// valid for ttl.
func (m *Manager) Issue(federation, nodeName, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := JoinClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   nodeName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Federation: federation,
		Role:       role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.signingKey)
}

// Verify checks a join token's signature and expiry and returns its claims.
// The parent calls this before assigning the presenting node an identity.
func (m *Manager) Verify(tokenString string) (*JoinClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JoinClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("capability: unexpected signing method %v", token.Header["alg"])
		}
		return m.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("capability: verifying join token: %w", err)
	}
	claims, ok := token.Claims.(*JoinClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("capability: join token invalid")
	}
	return claims, nil
}

// NegotiateAssign builds the identity-negotiation closure brokerbase.Base.Connect
// expects: it mints a join token for nodeName, immediately verifies it (this
// reference deployment has no separate parent process to present the token
// to), and returns assignedID once the round trip succeeds. A real
// cross-process transport would instead ship the minted token to the parent
// and decode its assigned-id reply.
func (m *Manager) NegotiateAssign(federation, nodeName, role string, ttl time.Duration, assignedID ids.GlobalBrokerId) func() (ids.GlobalBrokerId, error) {
	return func() (ids.GlobalBrokerId, error) {
		token, err := m.Issue(federation, nodeName, role, ttl)
		if err != nil {
			return 0, err
		}
		if _, err := m.Verify(token); err != nil {
			return 0, err
		}
		return assignedID, nil
	}
}
