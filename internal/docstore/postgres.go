package docstore

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/julianstephens/routineo/internal/constants"
	apperrors "github.com/julianstephens/routineo/internal/errors"
	"github.com/julianstephens/routineo/internal/logger"
)

var (
	ErrInvalidConnectionString = apperrors.New("invalid PostgreSQL connection string")
	ErrEmbeddedCredentials     = apperrors.New("connection string must not contain a password")
)

// ensureSearchPath points unqualified table names at the routineo schema
// unless the connection string already chooses one.
func ensureSearchPath(connStr string) string {
	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		u, err := url.Parse(connStr)
		if err != nil {
			logger.Warn("Failed to parse Postgres connection string", "error", err)
			return connStr
		}
		q := u.Query()
		if q.Get("search_path") == "" {
			q.Set("search_path", constants.AppName)
			u.RawQuery = q.Encode()
		}
		return u.String()
	}
	if !hasParam(connStr, "search_path") {
		return strings.TrimSpace(connStr) + " search_path=" + constants.AppName
	}
	return connStr
}

// hasParam reports whether a DSN-style connection string sets key.
func hasParam(connStr, key string) bool {
	for _, part := range strings.Fields(connStr) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 && strings.EqualFold(kv[0], key) {
			return true
		}
	}
	return false
}

// hasSSLMode checks URL and DSN forms for an sslmode parameter.
func hasSSLMode(connStr string) bool {
	if u, err := url.Parse(connStr); err == nil && u.Scheme != "" {
		for key := range u.Query() {
			if strings.EqualFold(key, "sslmode") {
				return true
			}
		}
	}
	return hasParam(connStr, "sslmode")
}

// ValidateConnString checks that connStr is a usable PostgreSQL connection
// string (URI or DSN) and that it carries no password.
func ValidateConnString(connStr string) (bool, error) {
	if strings.TrimSpace(connStr) == "" {
		return false, fmt.Errorf("%w: connection string cannot be empty", ErrInvalidConnectionString)
	}

	if _, err := pq.NewConnector(connStr); err != nil {
		return false, fmt.Errorf("%w: invalid connection string format: %v", ErrInvalidConnectionString, err)
	}

	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		u, err := url.Parse(connStr)
		if err != nil {
			return false, fmt.Errorf("%w: failed to parse connection URL: %v", ErrInvalidConnectionString, err)
		}
		if _, isSet := u.User.Password(); isSet {
			return false, ErrEmbeddedCredentials
		}
		if u.Host == "" && u.User == nil && (u.Path == "" || u.Path == "/") {
			return false, fmt.Errorf("%w: connection URL is incomplete", ErrInvalidConnectionString)
		}
		return true, nil
	}

	if hasParam(connStr, "password") {
		return false, ErrEmbeddedCredentials
	}
	return true, nil
}

// parseNotification splits a "collection:revision" payload.
func parseNotification(payload string) (string, int64, bool) {
	i := strings.LastIndexByte(payload, ':')
	if i <= 0 {
		return "", 0, false
	}
	rev, err := strconv.ParseInt(payload[i+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return payload[:i], rev, true
}

// listen subscribes to commit notifications from other connections, which
// is how live queries see writes made on other devices.
func (s *SQLStore) listen() (*pq.Listener, error) {
	l := pq.NewListener(s.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("Notification listener error", "event", ev, "error", err)
		}
	})
	if err := l.Listen(constants.NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", constants.NotifyChannel, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.stop:
				return
			case n, ok := <-l.Notify:
				if !ok {
					return
				}
				if n == nil {
					// Reconnected; notifications may have been missed.
					s.refreshAll()
					continue
				}
				collection, rev, ok := parseNotification(n.Extra)
				if !ok {
					logger.Debug("Ignoring malformed notification", "payload", n.Extra)
					continue
				}
				if s.observe(collection, rev) {
					s.hub.notify(collection)
				}
			case <-time.After(90 * time.Second):
				go l.Ping()
			}
		}
	}()
	return l, nil
}

func (s *SQLStore) refreshAll() {
	s.hub.mu.Lock()
	collections := make(map[string]bool)
	for _, sub := range s.hub.subs {
		collections[sub.collection] = true
	}
	s.hub.mu.Unlock()

	names := make([]string, 0, len(collections))
	for c := range collections {
		names = append(names, c)
	}
	if len(names) > 0 {
		s.hub.notify(names...)
	}
}
