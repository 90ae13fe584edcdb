package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/JeanGrijp/request-guard/internal/core/ports"
)

// ThreatPatterns lists request traits that add to an IP's threat score.
type ThreatPatterns struct {
	Paths      []string
	UserAgents []string

	PathScore       float64
	UserAgentScore  float64
	EmptyAgentScore float64
}

type Violation struct {
	Reason string
	Score  float64
}

func DefaultThreatPatterns() ThreatPatterns {
	return ThreatPatterns{
		Paths: []string{
			"/wp-admin", "/wp-login.php", "/.env", "/.git", "/phpmyadmin",
			"/admin.php", "/xmlrpc.php", "../", "/etc/passwd", "/cgi-bin",
		},
		UserAgents: []string{
			"sqlmap", "nikto", "nmap", "masscan", "zgrab", "dirbuster",
			"gobuster", "wpscan", "nuclei", "hydra",
		},
		PathScore:       10,
		UserAgentScore:  20,
		EmptyAgentScore: 2,
	}
}

// Match returns the violations r triggers, at most one per category.
func (p ThreatPatterns) Match(r *http.Request) []Violation {
	var out []Violation

	path := strings.ToLower(r.URL.Path)
	if r.URL.RawQuery != "" {
		path += "?" + strings.ToLower(r.URL.RawQuery)
	}
	for _, pattern := range p.Paths {
		if strings.Contains(path, pattern) {
			out = append(out, Violation{Reason: "suspicious_path:" + pattern, Score: p.PathScore})
			break
		}
	}

	ua := strings.ToLower(strings.TrimSpace(r.UserAgent()))
	if ua == "" {
		if p.EmptyAgentScore > 0 {
			out = append(out, Violation{Reason: "empty_user_agent", Score: p.EmptyAgentScore})
		}
	} else {
		for _, pattern := range p.UserAgents {
			if strings.Contains(ua, pattern) {
				out = append(out, Violation{Reason: "suspicious_user_agent:" + pattern, Score: p.UserAgentScore})
				break
			}
		}
	}
	return out
}

// NewThreatMiddleware records violations for suspicious requests. It never
// rejects by itself; blocking is left to the blocklist.
func NewThreatMiddleware(recorder ports.ThreatRecorder, patterns ThreatPatterns) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if violations := patterns.Match(r); len(violations) > 0 {
				ip := ClientIP(r.Header)
				for _, v := range violations {
					if _, err := recorder.RecordViolation(r.Context(), ip, v.Reason, v.Score); err != nil {
						log.Error().Err(err).Str("ip", ip).Msg("record violation failed")
						break
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
