package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	initDataMaxAge    = 24 * time.Hour
	initDataClockSkew = 5 * time.Minute
)

var (
	ErrNoInitData      = errors.New("initData is empty")
	ErrSignature       = errors.New("initData signature mismatch")
	ErrInitDataExpired = errors.New("initData expired")
)

// TelegramUser is the user object carried in mini-app initData.
type TelegramUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Language  string `json:"language_code"`
	IsPremium bool   `json:"is_premium"`
}

// ValidateInitData checks the initData signature against botToken and
// returns the user it was issued for.
func ValidateInitData(initData string, botToken string) (TelegramUser, error) {
	return validateInitData(initData, botToken, time.Now())
}

func validateInitData(initData string, botToken string, now time.Time) (TelegramUser, error) {
	if initData == "" {
		return TelegramUser{}, ErrNoInitData
	}
	if botToken == "" {
		return TelegramUser{}, errors.New("bot token is empty")
	}

	// Proxies and browsers sometimes turn "+" into a space on the way in.
	inputs := []string{
		initData,
		strings.ReplaceAll(initData, " ", "+"),
		strings.ReplaceAll(initData, "%20", "+"),
	}
	secrets := [][]byte{webAppSecret(botToken), legacySecret(botToken)}

	var lastErr error
	for _, input := range inputs {
		for _, secret := range secrets {
			user, err := verifyAndParse(input, secret, now)
			if err == nil {
				return user, nil
			}
			lastErr = err
			// Only a signature mismatch is worth another variant.
			if !errors.Is(err, ErrSignature) {
				return TelegramUser{}, err
			}
		}
	}
	return TelegramUser{}, lastErr
}

func verifyAndParse(initData string, secret []byte, now time.Time) (TelegramUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return TelegramUser{}, fmt.Errorf("parse initData: %w", err)
	}

	received := values.Get("hash")
	if received == "" {
		return TelegramUser{}, errors.New("initData hash is missing")
	}
	values.Del("hash")

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(dataCheckString(values)))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(received)) {
		return TelegramUser{}, ErrSignature
	}

	if raw := values.Get("auth_date"); raw != "" {
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
			issued := time.Unix(ts, 0)
			if now.Sub(issued) > initDataMaxAge {
				return TelegramUser{}, ErrInitDataExpired
			}
			if issued.Sub(now) > initDataClockSkew {
				return TelegramUser{}, errors.New("initData is from the future")
			}
		}
	}

	return parseUser(values.Get("user"))
}

// dataCheckString joins the sorted key=value pairs with newlines.
func dataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+values.Get(k))
	}
	return strings.Join(parts, "\n")
}

func parseUser(raw string) (TelegramUser, error) {
	if raw == "" {
		return TelegramUser{}, errors.New("initData user is empty")
	}
	var user TelegramUser
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return TelegramUser{}, fmt.Errorf("decode initData user: %w", err)
	}
	if user.ID == 0 {
		return TelegramUser{}, errors.New("initData user id is 0")
	}
	return user, nil
}

func webAppSecret(token string) []byte {
	h := hmac.New(sha256.New, []byte("WebAppData"))
	h.Write([]byte(token))
	return h.Sum(nil)
}

func legacySecret(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}

// extractInitData looks for initData in headers first, then the query string.
func extractInitData(r *http.Request) string {
	for _, h := range []string{"X-Telegram-InitData", "X-Telegram-Web-App-Data", "X-Telegram-WebApp-Data"} {
		if v := r.Header.Get(h); v != "" {
			return v
		}
	}

	if auth := r.Header.Get("Authorization"); len(auth) > 4 && strings.EqualFold(auth[:4], "tma ") {
		return strings.TrimSpace(auth[4:])
	}

	if v := r.URL.Query().Get("initData"); v != "" {
		return v
	}
	return r.URL.Query().Get("tgWebAppData")
}
