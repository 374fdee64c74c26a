// Package authtest provides an in-process fake of the ShopSphere auth API for
// tests: chi-routed endpoints, JWT access tokens, a cookie-borne refresh
// credential and call counters for asserting network behavior.
package authtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const refreshCookieName = "refreshToken"

var signingKey = []byte("authtest-signing-key")

// UserFixture seeds an account on the fake server.
type UserFixture struct {
	ID       string
	Username string
	Password string
	Email    string
	Role     string
	Shops    []string
}

// Server is a fake ShopSphere auth backend.
type Server struct {
	*httptest.Server

	lock         sync.Mutex
	users        map[string]UserFixture // by username
	validTokens  map[string]string      // token -> username
	refreshCreds map[string]string      // refresh credential -> username

	failRefresh  bool
	refreshDelay time.Duration
	refreshCalls int
	profileCalls int
	shopCalls    int
	loginCalls   int
	logoutCalls  int
}

// NewServer starts a fake backend. Callers own shutdown via Close.
func NewServer() *Server {
	s := &Server{
		users:        make(map[string]UserFixture),
		validTokens:  make(map[string]string),
		refreshCreds: make(map[string]string),
	}

	r := chi.NewRouter()
	r.Post("/api/auth/register", s.handleRegister)
	r.Post("/api/auth/login", s.handleLogin)
	r.Post("/api/auth/logout", s.handleLogout)
	r.Post("/api/auth/refresh-token", s.handleRefresh)
	r.Get("/api/auth/profile", s.handleProfile)
	r.Get("/api/auth/shop/{shopName}", s.handleShop)

	s.Server = httptest.NewServer(r)
	return s
}

// AddUser seeds an account. An empty Email defaults to the same
// username-derived address the register endpoint assigns.
func (s *Server) AddUser(user UserFixture) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if user.Email == "" {
		user.Email = user.Username + "@example.com"
	}
	s.users[user.Username] = user
}

// IssueToken mints a valid access token for a seeded user without going
// through login. Useful for pre-populating a client's token store.
func (s *Server) IssueToken(username string) string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.mintLocked(username)
}

// IssueRefreshCredential returns a refresh credential cookie for the user,
// for tests that need the refresh flow without a prior login.
func (s *Server) IssueRefreshCredential(username string) *http.Cookie {
	s.lock.Lock()
	defer s.lock.Unlock()
	cred := "refresh-" + username + "-" + time.Now().Format(time.RFC3339Nano)
	s.refreshCreds[cred] = username
	return &http.Cookie{Name: refreshCookieName, Value: cred, Path: "/"}
}

// ExpireToken invalidates an access token so the next bearer request gets 401.
func (s *Server) ExpireToken(token string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.validTokens, token)
}

// ExpireAllTokens invalidates every outstanding access token.
func (s *Server) ExpireAllTokens() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.validTokens = make(map[string]string)
}

// FailRefresh makes the refresh endpoint answer 401 regardless of credential.
func (s *Server) FailRefresh(fail bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failRefresh = fail
}

// SetRefreshDelay makes the refresh endpoint sleep before answering, to
// widen the window in which concurrent refresh attempts overlap.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.refreshDelay = d
}

// RefreshCalls returns how many refresh requests the server has seen.
func (s *Server) RefreshCalls() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.refreshCalls
}

// ProfileCalls returns how many profile requests the server has seen.
func (s *Server) ProfileCalls() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.profileCalls
}

// ShopCalls returns how many shop verification requests the server has seen.
func (s *Server) ShopCalls() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.shopCalls
}

// LogoutCalls returns how many logout requests the server has seen.
func (s *Server) LogoutCalls() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.logoutCalls
}

// mintLocked creates a signed JWT and records it as valid. Caller holds lock.
// A unique jti claim keeps tokens minted within the same second from
// colliding into identical strings.
func (s *Server) mintLocked(username string) string {
	claims := jwt.MapClaims{
		"sub": username,
		"jti": uuid.NewString(),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(15 * time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic("authtest: signing token: " + err.Error())
	}
	s.validTokens[token] = username
	return token
}

// bearerUser resolves the Authorization header to a seeded user. The token
// must parse as a signed, unexpired JWT and still be in the valid set.
func (s *Server) bearerUser(r *http.Request) (UserFixture, bool) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return UserFixture{}, false
	}

	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return UserFixture{}, false
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	username, ok := s.validTokens[raw]
	if !ok {
		return UserFixture{}, false
	}
	user, ok := s.users[username]
	return user, ok
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string   `json:"username"`
		Password string   `json:"password"`
		Shops    []string `json:"shops"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeEnvelope(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	s.lock.Lock()
	if _, exists := s.users[body.Username]; exists {
		s.lock.Unlock()
		writeEnvelope(w, http.StatusConflict, "username already taken", nil)
		return
	}
	user := UserFixture{
		ID:       "u-" + body.Username,
		Username: body.Username,
		Password: body.Password,
		Email:    body.Username + "@example.com",
		Role:     "owner",
		Shops:    body.Shops,
	}
	s.users[body.Username] = user
	token := s.mintLocked(body.Username)
	cred := "refresh-" + body.Username
	s.refreshCreds[cred] = body.Username
	s.lock.Unlock()

	http.SetCookie(w, &http.Cookie{Name: refreshCookieName, Value: cred, Path: "/", HttpOnly: true})
	writeEnvelope(w, http.StatusCreated, "registered", map[string]any{
		"user":        userPayload(user),
		"accessToken": token,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username   string `json:"username"`
		Password   string `json:"password"`
		RememberMe bool   `json:"rememberMe"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeEnvelope(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	s.lock.Lock()
	s.loginCalls++
	user, ok := s.users[body.Username]
	if !ok || user.Password != body.Password {
		s.lock.Unlock()
		writeEnvelope(w, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}
	token := s.mintLocked(body.Username)
	cred := "refresh-" + body.Username
	s.refreshCreds[cred] = body.Username
	s.lock.Unlock()

	http.SetCookie(w, &http.Cookie{Name: refreshCookieName, Value: cred, Path: "/", HttpOnly: true})
	writeEnvelope(w, http.StatusOK, "logged in", map[string]any{
		"user":        userPayload(user),
		"accessToken": token,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	s.logoutCalls++
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		delete(s.refreshCreds, cookie.Value)
	}
	s.lock.Unlock()

	http.SetCookie(w, &http.Cookie{Name: refreshCookieName, Value: "", Path: "/", MaxAge: -1})
	writeEnvelope(w, http.StatusOK, "logged out", nil)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	delay := s.refreshDelay
	s.lock.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	s.lock.Lock()
	s.refreshCalls++
	if s.failRefresh {
		s.lock.Unlock()
		writeEnvelope(w, http.StatusUnauthorized, "refresh credential invalid", nil)
		return
	}
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		s.lock.Unlock()
		writeEnvelope(w, http.StatusUnauthorized, "refresh credential missing", nil)
		return
	}
	username, ok := s.refreshCreds[cookie.Value]
	if !ok {
		s.lock.Unlock()
		writeEnvelope(w, http.StatusUnauthorized, "refresh credential invalid", nil)
		return
	}
	token := s.mintLocked(username)
	s.lock.Unlock()

	writeEnvelope(w, http.StatusOK, "token refreshed", map[string]any{
		"accessToken": token,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	s.profileCalls++
	s.lock.Unlock()

	user, ok := s.bearerUser(r)
	if !ok {
		writeEnvelope(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}
	writeEnvelope(w, http.StatusOK, "profile", map[string]any{
		"user": userPayload(user),
	})
}

func (s *Server) handleShop(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	s.shopCalls++
	s.lock.Unlock()

	user, ok := s.bearerUser(r)
	if !ok {
		writeEnvelope(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	shopName := chi.URLParam(r, "shopName")
	for _, shop := range user.Shops {
		if strings.EqualFold(shop, shopName) {
			writeEnvelope(w, http.StatusOK, "shop", map[string]any{
				"shop": map[string]any{
					"name":        shop,
					"displayName": strings.ToUpper(shop[:1]) + shop[1:],
					"owner":       user.Username,
				},
			})
			return
		}
	}
	writeEnvelope(w, http.StatusForbidden, "not a member of this shop", nil)
}

func userPayload(user UserFixture) map[string]any {
	shops := make([]map[string]string, 0, len(user.Shops))
	for _, name := range user.Shops {
		shops = append(shops, map[string]string{
			"name":        name,
			"displayName": strings.ToUpper(name[:1]) + name[1:],
		})
	}
	return map[string]any{
		"_id":      user.ID,
		"username": user.Username,
		"email":    user.Email,
		"role":     user.Role,
		"shops":    shops,
	}
}

func writeEnvelope(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":    status >= 200 && status <= 299,
		"message":    message,
		"statusCode": status,
		"data":       data,
	})
}
