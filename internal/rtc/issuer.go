package rtc

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"volitus/server/internal/config"
	"volitus/server/internal/errs"
	"volitus/server/internal/interfaces"
)

// Claims is the payload of a media token
type Claims struct {
	jwt.RegisteredClaims
	AppID   string `json:"app_id"`
	Channel string `json:"channel"`
	UID     string `json:"uid"`
}

// StaticIssuer signs media transport tokens with the app certificate. The
// token is opaque to the room server; only the media provider checks it.
type StaticIssuer struct {
	appID       string
	certificate []byte
	ttl         time.Duration
	now         func() time.Time
}

// NewStaticIssuer creates an issuer from the RTC config
func NewStaticIssuer(cfg config.RTCConfig) *StaticIssuer {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &StaticIssuer{
		appID:       cfg.AppID,
		certificate: []byte(cfg.AppCertificate),
		ttl:         ttl,
		now:         time.Now,
	}
}

// Issue returns a token for uid on channel. Without app id and certificate it
// returns errs.ErrUnavailable.
func (s *StaticIssuer) Issue(channel, uid string) (*interfaces.Token, error) {
	if s.appID == "" || len(s.certificate) == 0 {
		return nil, fmt.Errorf("%w: rtc provider not configured", errs.ErrUnavailable)
	}
	if channel == "" {
		return nil, fmt.Errorf("%w: empty channel", errs.ErrMalformed)
	}

	issued := s.now().Truncate(time.Second)
	expires := issued.Add(s.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.appID,
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		AppID:   s.appID,
		Channel: channel,
		UID:     uid,
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.certificate)
	if err != nil {
		return nil, fmt.Errorf("sign rtc token: %w", err)
	}

	return &interfaces.Token{
		AppID:     s.appID,
		Channel:   channel,
		UID:       uid,
		Value:     value,
		ExpiresAt: expires,
	}, nil
}
