package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// OTP errors.
var (
	ErrOTPExpired = errors.New("otp expired")
	ErrOTPInvalid = errors.New("otp invalid")
)

const otpDigits = 6

// OTPIssuer creates and checks stateless one-time passcodes.
//
// The client receives hash = hex(HMAC-SHA256(secret, "email.otp.expires")) + "." + expires
// and must send it back alongside the code, so nothing is stored server side.
type OTPIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewOTPIssuer creates an OTPIssuer.
func NewOTPIssuer(secret string, ttl time.Duration) *OTPIssuer {
	return &OTPIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate returns a fresh code and the hash the client must echo back.
func (o *OTPIssuer) Generate(email string) (code, hash string, err error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", "", fmt.Errorf("generate otp: %w", err)
	}
	code = fmt.Sprintf("%0*d", otpDigits, n.Int64())

	expires := o.now().Add(o.ttl).UnixMilli()
	return code, o.sign(email, code, expires) + "." + strconv.FormatInt(expires, 10), nil
}

// Verify checks code against hash for email.
func (o *OTPIssuer) Verify(email, code, hash string) error {
	mac, expiresRaw, ok := strings.Cut(hash, ".")
	if !ok {
		return ErrOTPInvalid
	}
	expires, err := strconv.ParseInt(expiresRaw, 10, 64)
	if err != nil {
		return ErrOTPInvalid
	}
	if o.now().UnixMilli() > expires {
		return ErrOTPExpired
	}

	expected := o.sign(email, code, expires)
	if !hmac.Equal([]byte(mac), []byte(expected)) {
		return ErrOTPInvalid
	}
	return nil
}

func (o *OTPIssuer) sign(email, code string, expires int64) string {
	h := hmac.New(sha256.New, o.secret)
	fmt.Fprintf(h, "%s.%s.%d", strings.ToLower(strings.TrimSpace(email)), code, expires)
	return hex.EncodeToString(h.Sum(nil))
}
