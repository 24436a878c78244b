package httpupload

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/telemetry"
)

// BatchClaims are carried in the upload token
type BatchClaims struct {
	BatchID  string `json:"batch_id"`
	DeviceID string `json:"device_id"`
	SHA256   string `json:"sha256"` // hex digest of the compressed body
	jwt.RegisteredClaims
}

// PayloadDigest returns the hex SHA-256 of the batch payload
func PayloadDigest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// SignBatch issues an HS256 token for b. Every call gets a fresh jti.
func SignBatch(b telemetry.Batch, key []byte, now time.Time) (string, error) {
	if len(key) == 0 {
		return "", errors.WrapInvalid(fmt.Errorf("%w: empty signing key", errors.ErrMissingConfig),
			"httpupload", "SignBatch", "key check")
	}

	claims := BatchClaims{
		BatchID:  b.ID,
		DeviceID: b.DeviceID,
		SHA256:   PayloadDigest(b.Payload),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", errors.WrapFatal(err, "httpupload", "SignBatch", "sign token")
	}
	return signed, nil
}

// VerifyBatch parses token and checks it was signed with key for payload.
// Collectors use it on the receiving side.
func VerifyBatch(token string, key []byte, payload []byte) (*BatchClaims, error) {
	claims := &BatchClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuedAt())
	if err != nil {
		return nil, errors.WrapInvalid(err, "httpupload", "VerifyBatch", "parse token")
	}
	if claims.SHA256 != PayloadDigest(payload) {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: payload digest mismatch", errors.ErrDataCorrupted),
			"httpupload", "VerifyBatch", "digest check")
	}
	return claims, nil
}
