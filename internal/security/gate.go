package security

import (
	"crypto/subtle"
	"log/slog"

	"github.com/cppservergit/apiserver2/internal/apierr"
	"github.com/cppservergit/apiserver2/internal/httpmsg"
)

// Gate enforces the two-state token model (spec.md §4.G) on secure
// endpoints and the static bearer-key check on internal endpoints.
type Gate struct {
	jwtSvc  *Service
	mfaPath string
	apiKey  string
	log     *slog.Logger
}

// NewGate builds a Gate. apiKey empty disables internal-endpoint auth
// entirely, per spec.md §6.
func NewGate(jwtSvc *Service, mfaPath, apiKey string, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{jwtSvc: jwtSvc, mfaPath: mfaPath, apiKey: apiKey, log: log}
}

// Authenticate runs the full validation algorithm of spec.md §4.G step 1-5
// against a secure endpoint request.
func (g *Gate) Authenticate(req *httpmsg.Request) (Claims, *apierr.Error) {
	token, ok := req.BearerToken()
	if !ok {
		return nil, apierr.Unauthorized("Invalid or missing token")
	}

	claims, err := g.jwtSvc.IsValid(token)
	if err != nil {
		return nil, apierr.Unauthorized("Invalid or missing token")
	}

	isPreauth := claims["preauth"] == "true"
	isTargetMFA := req.Path == g.mfaPath

	if isPreauth != isTargetMFA {
		g.log.Warn("security_alert: preauth/MFA path mismatch",
			"security_alert", true,
			"path", req.Path,
			"remote_ip", req.RemoteIP,
			"is_preauth", isPreauth,
		)
		return nil, apierr.Unauthorized("Invalid or missing token")
	}

	return claims, nil
}

// AuthenticateInternal checks the static bearer key used by /metrics,
// /metricsp, and /version. An empty configured key disables the check.
func (g *Gate) AuthenticateInternal(req *httpmsg.Request) *apierr.Error {
	if g.apiKey == "" {
		return nil
	}
	token, ok := req.BearerToken()
	if !ok {
		return apierr.Unauthorized("Invalid or missing token")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(g.apiKey)) != 1 {
		return apierr.Unauthorized("Invalid or missing token")
	}
	return nil
}
