package gobayeux

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

type cookieEntry struct {
	value   string
	expires time.Time
}

func (e cookieEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// CookieStore keeps the cookies of one client in memory. Entries expire
// lazily: an expired cookie is dropped the first time it is read.
//
// CookieStore implements http.CookieJar so the long-polling transport sends
// every stored cookie with each request and stores the cookies the server
// sets.
type CookieStore struct {
	mu      sync.Mutex
	cookies map[string]cookieEntry
	now     func() time.Time
}

// NewCookieStore creates an empty CookieStore
func NewCookieStore() *CookieStore {
	return &CookieStore{cookies: make(map[string]cookieEntry), now: time.Now}
}

// Set stores a cookie that never expires
func (s *CookieStore) Set(name, value string) {
	s.SetWithMaxAge(name, value, 0)
}

// SetWithMaxAge stores a cookie that expires once maxAge has elapsed. A
// maxAge of zero or less means the cookie never expires.
func (s *CookieStore) SetWithMaxAge(name, value string, maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := cookieEntry{value: value}
	if maxAge > 0 {
		entry.expires = s.now().Add(maxAge)
	}
	s.cookies[name] = entry
}

// Get returns the value of the named cookie and whether it was present and
// unexpired
func (s *CookieStore) Get(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cookies[name]
	if !ok {
		return "", false
	}
	if entry.expired(s.now()) {
		delete(s.cookies, name)
		return "", false
	}
	return entry.value, true
}

// Delete removes the named cookie
func (s *CookieStore) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cookies, name)
}

// SetCookies implements http.CookieJar. Cookies scoped to a public suffix
// domain are ignored, a negative MaxAge deletes the cookie.
func (s *CookieStore) SetCookies(u *url.URL, cookies []*http.Cookie) {
	for _, c := range cookies {
		if c.Domain != "" && isPublicSuffix(c.Domain) {
			continue
		}
		switch {
		case c.MaxAge < 0:
			s.Delete(c.Name)
		case c.MaxAge > 0:
			s.SetWithMaxAge(c.Name, c.Value, time.Duration(c.MaxAge)*time.Second)
		case !c.Expires.IsZero():
			ttl := c.Expires.Sub(s.now())
			if ttl <= 0 {
				s.Delete(c.Name)
				continue
			}
			s.SetWithMaxAge(c.Name, c.Value, ttl)
		default:
			s.Set(c.Name, c.Value)
		}
	}
}

// Cookies implements http.CookieJar and returns every unexpired cookie
func (s *CookieStore) Cookies(u *url.URL) []*http.Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	cookies := make([]*http.Cookie, 0, len(s.cookies))
	for name, entry := range s.cookies {
		if entry.expired(now) {
			delete(s.cookies, name)
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: entry.value})
	}
	return cookies
}

func isPublicSuffix(domain string) bool {
	domain = strings.TrimPrefix(strings.ToLower(domain), ".")
	suffix, _ := publicsuffix.PublicSuffix(domain)
	return suffix == domain
}
