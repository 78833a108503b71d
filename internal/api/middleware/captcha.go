package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/movesintl/moves-study-hub-sub001/internal/captcha"
	"github.com/movesintl/moves-study-hub-sub001/internal/config"
	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
)

const (
	// ContextKeyIsHumanVerified holds the key for captcha status in Gin context.
	ContextKeyIsHumanVerified = "isHumanVerified"
	// ContextKeyCaptchaError holds the error of a failed verification call.
	ContextKeyCaptchaError = "captchaError"
)

// CaptchaMiddleware handles reCAPTCHA verification (X-C-V) and human token (X-C-T) checks.
func CaptchaMiddleware(cfg *config.Config, verifier captcha.IVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		fingerprint := c.GetHeader("X-BFP")
		spaSession := c.GetHeader("X-SPA")
		humanToken := c.GetHeader("X-C-T")
		challenge := c.GetHeader("X-C-V")

		isHuman := humanToken != "" && verifier.ValidateHumanToken(humanToken, clientIP, fingerprint, spaSession)

		if !isHuman && challenge != "" {
			verified, err := verifier.Verify(c.Request.Context(), challenge, clientIP)
			switch {
			case err != nil:
				logger.Warn().Err(err).Str("ip", clientIP).Msg("recaptcha verification unavailable")
				c.Set(ContextKeyCaptchaError, err)
			case verified:
				isHuman = true
				token, err := verifier.GenerateHumanToken(clientIP, fingerprint, spaSession, cfg.CaptchaTokenTTL)
				if err != nil {
					logger.Error().Err(err).Msg("failed to issue X-C-T token")
				} else {
					c.Header("X-C-T", token)
				}
			}
		}

		c.Set(ContextKeyIsHumanVerified, isHuman)
		c.Next()
	}
}

// HumanVerified reports the captcha outcome of the request. The error is
// set when the verification service could not be reached.
func HumanVerified(c *gin.Context) (bool, error) {
	if v, ok := c.Get(ContextKeyCaptchaError); ok {
		if err, ok := v.(error); ok {
			return false, err
		}
	}
	return c.GetBool(ContextKeyIsHumanVerified), nil
}
