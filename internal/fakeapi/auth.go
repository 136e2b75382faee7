package fakeapi

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/bookbazaar/internal/limiter"
	"github.com/and161185/bookbazaar/internal/model"
	"github.com/and161185/bookbazaar/internal/validate"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type ctxKey struct{}

type principal struct {
	id   int
	role string
}

func principalFrom(ctx context.Context) principal {
	p, _ := ctx.Value(ctxKey{}).(principal)
	return p
}

// IssueAccessToken signs a token for the user the way the login endpoint does.
func (s *Server) IssueAccessToken(userID int, role string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessTokenLocked(userID, role)
}

func (s *Server) accessTokenLocked(userID int, role string) (string, error) {
	claims := jwt.MapClaims{
		"userId": userID,
		"role":   role,
		"exp":    s.now().Add(s.accessTTL).Unix(),
		"epoch":  s.epoch,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// authMiddleware accepts "Bearer <jwt>" signed by this server in the current epoch.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "authorization header missing")
			return
		}
		p, err := s.verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, p)))
	})
}

func (s *Server) verify(raw string) (principal, error) {
	tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return principal{}, errors.New("token expired")
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return principal{}, errors.New("token invalid")
	}
	uid, ok := claims["userId"].(float64)
	if !ok {
		return principal{}, errors.New("userId missing")
	}
	epoch, _ := claims["epoch"].(float64)

	s.mu.Lock()
	defer s.mu.Unlock()
	if int(epoch) != s.epoch {
		return principal{}, errors.New("token expired")
	}
	acc, ok := s.users[int(uid)]
	if !ok {
		return principal{}, errors.New("unknown user")
	}
	return principal{id: acc.user.ID, role: acc.user.Role}, nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if principalFrom(r.Context()).role != model.RoleAdmin {
			writeJSON(w, http.StatusForbidden, message{Message: "not authorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      int    `json:"userId"`
	Role        string `json:"role"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	ctx := r.Context()
	ip := limiter.HashIP(clientIP(r))
	if ok, retry, err := s.logins.Allow(ctx, req.Username, ip); err != nil {
		writeError(w, http.StatusInternalServerError, "login limiter")
		return
	} else if !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(retry.Round(time.Second).Seconds())))
		writeError(w, http.StatusTooManyRequests, fmt.Sprintf("too many login attempts, retry in %s", retry.Round(time.Second)))
		return
	}

	s.mu.Lock()
	var acc *account
	for _, a := range s.users {
		if a.user.Username == req.Username && s.hasher.Verify(req.Password, a.password) {
			acc = a
			break
		}
	}
	if acc == nil {
		s.mu.Unlock()
		if blocked, _, _ := s.logins.Failure(ctx, req.Username, ip); blocked {
			s.log.Warn("login blocked", zap.String("username", req.Username))
		}
		writeError(w, http.StatusUnauthorized, "wrong username or password")
		return
	}
	access, err := s.accessTokenLocked(acc.user.ID, acc.user.Role)
	if err != nil {
		s.mu.Unlock()
		writeError(w, http.StatusInternalServerError, "sign access token")
		return
	}
	rt, err := randomToken(48)
	if err != nil {
		s.mu.Unlock()
		writeError(w, http.StatusInternalServerError, "create refresh token")
		return
	}
	s.refresh[rt] = acc.user.ID
	resp := loginResponse{AccessToken: access, UserID: acc.user.ID, Role: acc.user.Role}
	s.mu.Unlock()
	_ = s.logins.Success(ctx, req.Username, ip)

	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    rt,
		Path:     "/",
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	ck, err := r.Cookie(RefreshCookie)
	if err != nil || ck.Value == "" {
		writeError(w, http.StatusBadRequest, "refresh token missing")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	uid, ok := s.refresh[ck.Value]
	if !ok {
		writeError(w, http.StatusUnauthorized, "refresh token invalid or expired")
		return
	}
	acc, ok := s.users[uid]
	if !ok {
		writeError(w, http.StatusInternalServerError, "user not found")
		return
	}
	access, err := s.accessTokenLocked(uid, acc.user.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sign access token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": access})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ck, err := r.Cookie(RefreshCookie)
	if err != nil || ck.Value == "" {
		writeError(w, http.StatusBadRequest, "refresh token missing")
		return
	}
	s.mu.Lock()
	delete(s.refresh, ck.Value)
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	writeJSON(w, http.StatusOK, message{Message: "logged out"})
}

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	var reg validate.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := validate.Struct(reg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.users {
		if strings.EqualFold(a.user.Username, reg.Username) {
			writeError(w, http.StatusConflict, fmt.Sprintf("username %q already exists", reg.Username))
			return
		}
	}
	id := s.addUserLocked(model.User{
		Name:     reg.Name,
		Lastname: reg.Lastname,
		Username: reg.Username,
		Email:    reg.Email,
	}, reg.Password)
	writeJSON(w, http.StatusOK, s.users[id].user)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	s.mu.Lock()
	acc, ok := s.users[p.id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusBadRequest, "invalid user")
		return
	}
	writeJSON(w, http.StatusOK, acc.user)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]model.User, 0, len(s.users))
	for id := 1; id < s.nextUser; id++ {
		if a, ok := s.users[id]; ok {
			out = append(out, a.user)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}
