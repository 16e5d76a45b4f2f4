package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// DefaultCookieFile returns the path of the cookie file shared with wget/curl (~/.urs_cookies)
func DefaultCookieFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".urs_cookies")
}

const netscapeHeader = "# Netscape HTTP Cookie File"
const httpOnlyPrefix = "#HttpOnly_"

type cookieKey struct {
	domain, path, name string
}

type cookieEntry struct {
	cookie            http.Cookie
	includeSubdomains bool
}

// cookieStore is a cookie jar recording the cookies to save them in the Netscape format.
// Session cookies are kept (as wget --keep-session-cookies does).
type cookieStore struct {
	jar     *cookiejar.Jar
	mu      sync.Mutex
	entries map[cookieKey]cookieEntry
	now     func() time.Time
}

func newCookieStore() (*cookieStore, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("newCookieStore: %w", err)
	}
	return &cookieStore{jar: jar, entries: map[cookieKey]cookieEntry{}, now: time.Now}, nil
}

// Cookies implements http.CookieJar
func (s *cookieStore) Cookies(u *url.URL) []*http.Cookie {
	return s.jar.Cookies(u)
}

// SetCookies implements http.CookieJar
func (s *cookieStore) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.jar.SetCookies(u, cookies)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cookies {
		e := cookieEntry{cookie: *c}
		if e.cookie.Domain == "" {
			e.cookie.Domain = u.Hostname()
		} else {
			e.cookie.Domain = strings.TrimPrefix(e.cookie.Domain, ".")
			e.includeSubdomains = true
		}
		if e.cookie.Path == "" || e.cookie.Path[0] != '/' {
			e.cookie.Path = defaultPath(u.Path)
		}
		if e.cookie.MaxAge > 0 {
			e.cookie.Expires = s.now().Add(time.Duration(e.cookie.MaxAge) * time.Second)
		}
		key := cookieKey{domain: e.cookie.Domain, path: e.cookie.Path, name: e.cookie.Name}
		if e.cookie.MaxAge < 0 || (!e.cookie.Expires.IsZero() && !e.cookie.Expires.After(s.now())) {
			delete(s.entries, key)
			continue
		}
		s.entries[key] = e
	}
}

// defaultPath as defined in RFC 6265 section 5.1.4
func defaultPath(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return p[:i]
}

// Load reads cookies in the Netscape format. Expired cookies are ignored.
func (s *cookieStore) Load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for lineNb := 1; scanner.Scan(); lineNb++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		httpOnly := strings.HasPrefix(line, httpOnlyPrefix)
		if httpOnly {
			line = strings.TrimPrefix(line, httpOnlyPrefix)
		} else if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			return fmt.Errorf("Load: line %d: expecting 7 fields, got %d", lineNb, len(fields))
		}
		expires, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return fmt.Errorf("Load: line %d: %w", lineNb, err)
		}
		c := &http.Cookie{
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			Name:     fields[5],
			Value:    fields[6],
			HttpOnly: httpOnly,
		}
		if expires > 0 {
			c.Expires = time.Unix(expires, 0)
			if !c.Expires.After(s.now()) {
				continue
			}
		}
		host := strings.TrimPrefix(fields[0], ".")
		if strings.EqualFold(fields[1], "TRUE") {
			c.Domain = host
		}
		scheme := "http"
		if c.Secure {
			scheme = "https"
		}
		s.SetCookies(&url.URL{Scheme: scheme, Host: host, Path: c.Path}, []*http.Cookie{c})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("Load: %w", err)
	}
	return nil
}

// Save writes the non-expired cookies in the Netscape format
func (s *cookieStore) Save(w io.Writer) error {
	s.mu.Lock()
	entries := make([]cookieEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.cookie.Expires.IsZero() || e.cookie.Expires.After(s.now()) {
			entries = append(entries, e)
		}
	}
	s.mu.Unlock()
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].cookie, entries[j].cookie
		if a.Domain != b.Domain {
			return a.Domain < b.Domain
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Name < b.Name
	})

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, netscapeHeader)
	for _, e := range entries {
		c := e.cookie
		domain := c.Domain
		if e.includeSubdomains {
			domain = "." + domain
		}
		if c.HttpOnly {
			domain = httpOnlyPrefix + domain
		}
		var expires int64
		if !c.Expires.IsZero() {
			expires = c.Expires.Unix()
		}
		fmt.Fprintf(bw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n", domain, netscapeBool(e.includeSubdomains), c.Path, netscapeBool(c.Secure), expires, c.Name, c.Value)
	}
	return bw.Flush()
}

func netscapeBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// LoadFile loads the cookie file. A missing file is not an error.
func (s *cookieStore) LoadFile(file string) error {
	f, err := os.Open(file)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("LoadFile: %w", err)
	}
	defer f.Close()
	if err := s.Load(f); err != nil {
		return fmt.Errorf("LoadFile[%s].%w", file, err)
	}
	return nil
}

// SaveFile writes the cookie file (mode 600)
func (s *cookieStore) SaveFile(file string) error {
	f, err := os.OpenFile(file, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("SaveFile: %w", err)
	}
	if err := s.Save(f); err != nil {
		f.Close()
		return fmt.Errorf("SaveFile[%s].%w", file, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("SaveFile: %w", err)
	}
	return nil
}
