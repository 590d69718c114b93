package loadgen

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"gopkg.in/yaml.v3"
)

// GenConfig describes the synthetic upload parsed from YAML.
type GenConfig struct {
	Output       string  `yaml:"output"`
	Seed         uint64  `yaml:"seed"`
	Events       int     `yaml:"events"`
	Users        int     `yaml:"users"`
	CorruptRatio float64 `yaml:"corruptRatio"`
	Start        string  `yaml:"start"` // RFC3339; defaults to now-2h
	SpanMinutes  int     `yaml:"spanMinutes"`

	Scenarios struct {
		Burst struct {
			Enabled  bool   `yaml:"enabled"`
			ClientIP string `yaml:"clientIp"`
			Count    int    `yaml:"count"`
		} `yaml:"burst"`
		Beacon struct {
			Enabled  bool   `yaml:"enabled"`
			DestHost string `yaml:"destHost"`
			Minutes  int    `yaml:"minutes"`
			PerMin   int    `yaml:"perMinute"`
		} `yaml:"beacon"`
		PhishChain struct {
			Enabled bool `yaml:"enabled"`
		} `yaml:"phishChain"`
		MultiCategory struct {
			Enabled bool `yaml:"enabled"`
			Hits    int  `yaml:"hits"`
		} `yaml:"multiCategory"`
	} `yaml:"scenarios"`
}

func readGenConfig(path string) (GenConfig, error) {
	var cfg GenConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

type identity struct {
	user       string
	clientIP   string
	department string
	location   string
}

// Generate writes a synthetic Zscaler-style JSONL upload with optional
// injected attack scenarios and a configurable share of corrupt lines.
func Generate(configPath *string) {
	cfg, err := readGenConfig(*configPath)
	if err != nil {
		log.Fatalf("[FATAL] error loading config: %v", err)
	}
	applyDefaults(&cfg)

	gofakeit.Seed(cfg.Seed)

	start, err := time.Parse(time.RFC3339, cfg.Start)
	if err != nil {
		log.Fatalf("[FATAL] bad start time %q: %v", cfg.Start, err)
	}
	start = start.UTC()

	users := make([]identity, cfg.Users)
	for i := range users {
		users[i] = identity{
			user:       RandomUser(),
			clientIP:   fmt.Sprintf("10.%d.%d.%d", gofakeit.Number(0, 4), gofakeit.Number(0, 254), gofakeit.Number(1, 254)),
			department: Pick(Departments),
			location:   Pick(Locations),
		}
	}

	f, err := os.Create(cfg.Output)
	if err != nil {
		log.Fatalf("[FATAL] cannot create output file: %v", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()

	written := 0
	emit := func(line string) {
		fmt.Fprintln(w, line)
		written++
	}

	for i := 0; i < cfg.Events; i++ {
		if gofakeit.Float64Range(0, 1) < cfg.CorruptRatio {
			emit(corruptLine())
			continue
		}
		who := users[gofakeit.Number(0, len(users)-1)]
		at := start.Add(time.Duration(gofakeit.Number(0, cfg.SpanMinutes*60)) * time.Second)
		emit(benignLine(who, at))
	}

	attacker := users[0]
	if cfg.Scenarios.Burst.Enabled {
		at := start.Add(time.Duration(cfg.SpanMinutes/2) * time.Minute)
		ip := cfg.Scenarios.Burst.ClientIP
		if ip == "" {
			ip = attacker.clientIP
		}
		for i := 0; i < cfg.Scenarios.Burst.Count; i++ {
			who := attacker
			who.clientIP = ip
			emit(benignLine(who, at.Add(time.Duration(gofakeit.Number(0, 59))*time.Second)))
		}
		log.Printf("[INFO] injected burst: ip=%s count=%d", ip, cfg.Scenarios.Burst.Count)
	}
	if cfg.Scenarios.Beacon.Enabled {
		s := cfg.Scenarios.Beacon
		for m := 0; m < s.Minutes; m++ {
			at := start.Add(time.Duration(m*3) * time.Minute)
			for i := 0; i < s.PerMin; i++ {
				emit(threatLine(attacker, at.Add(time.Duration(i)*time.Second),
					s.DestHost, "Botnet Callback", "Win32.Backdoor.Gen"))
			}
		}
		log.Printf("[INFO] injected beacon: host=%s minutes=%d", s.DestHost, s.Minutes)
	}
	if cfg.Scenarios.PhishChain.Enabled {
		phishAt := start.Add(5 * time.Minute)
		for i := 0; i < 3; i++ {
			emit(threatLine(attacker, phishAt.Add(time.Duration(i)*time.Minute),
				Pick(MaliciousHosts), "Phishing", "HTML.Phish.CredHarvest"))
		}
		payloadAt := phishAt.Add(12 * time.Minute)
		for i := 0; i < 3; i++ {
			emit(threatLine(attacker, payloadAt.Add(time.Duration(i)*time.Minute),
				Pick(MaliciousHosts), "Malware Site", "Win32.Trojan.Dropper"))
		}
		log.Printf("[INFO] injected phish chain: user=%s", attacker.user)
	}
	if cfg.Scenarios.MultiCategory.Enabled {
		hits := cfg.Scenarios.MultiCategory.Hits
		for i := 0; i < hits; i++ {
			cat := ThreatCategories[i%len(ThreatCategories)]
			at := start.Add(time.Duration(gofakeit.Number(0, cfg.SpanMinutes)) * time.Minute)
			emit(threatLine(attacker, at, Pick(MaliciousHosts), cat, "Gen.Multi.Stage"))
		}
		log.Printf("[INFO] injected multi-category: user=%s hits=%d", attacker.user, hits)
	}

	log.Printf("[INFO] wrote %d lines to %s (seed=%d)", written, cfg.Output, cfg.Seed)
}

func applyDefaults(cfg *GenConfig) {
	if cfg.Output == "" {
		cfg.Output = "upload.jsonl"
	}
	if cfg.Events == 0 {
		cfg.Events = 5000
	}
	if cfg.Users == 0 {
		cfg.Users = 25
	}
	if cfg.SpanMinutes == 0 {
		cfg.SpanMinutes = 120
	}
	if cfg.Start == "" {
		cfg.Start = time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Minute).Format(time.RFC3339)
	}
}

// record uses the NSS feed key spelling the normalizer recognizes.
type record struct {
	Datetime       string `json:"datetime"`
	User           string `json:"user"`
	Department     string `json:"department"`
	Location       string `json:"location"`
	ClientIP       string `json:"ClientIP"`
	Hostname       string `json:"hostname"`
	URL            string `json:"url"`
	Action         string `json:"action"`
	RequestMethod  string `json:"requestmethod"`
	URLCategory    string `json:"urlcategory"`
	ThreatCategory string `json:"threatcategory,omitempty"`
	ThreatName     string `json:"threatname,omitempty"`
	RiskScore      int    `json:"riskscore"`
	Status         int    `json:"status"`
}

func wrap(rec record) string {
	b, _ := json.Marshal(map[string]any{"event": rec})
	return string(b)
}

func benignLine(who identity, at time.Time) string {
	host := Pick(BenignHosts)
	return wrap(record{
		Datetime:      at.Format("2006-01-02 15:04:05"),
		User:          who.user,
		Department:    who.department,
		Location:      who.location,
		ClientIP:      who.clientIP,
		Hostname:      host,
		URL:           fmt.Sprintf("https://%s/%s", host, gofakeit.Word()),
		Action:        "allowed",
		RequestMethod: "GET",
		URLCategory:   Pick(URLCategories),
		RiskScore:     gofakeit.Number(0, 20),
		Status:        200,
	})
}

func threatLine(who identity, at time.Time, host, category, name string) string {
	return wrap(record{
		Datetime:       at.Format("2006-01-02 15:04:05"),
		User:           who.user,
		Department:     who.department,
		Location:       who.location,
		ClientIP:       who.clientIP,
		Hostname:       host,
		URL:            fmt.Sprintf("https://%s/%s", host, gofakeit.Word()),
		Action:         "blocked",
		RequestMethod:  "GET",
		URLCategory:    "Suspicious Content",
		ThreatCategory: category,
		ThreatName:     name,
		RiskScore:      gofakeit.Number(70, 100),
		Status:         403,
	})
}

// corruptLine produces the truncation and garbage shapes real feeds emit.
func corruptLine() string {
	switch gofakeit.Number(0, 2) {
	case 0:
		full := benignLine(identity{user: RandomUser(), clientIP: "10.9.9.9"}, time.Now().UTC())
		return full[:len(full)/2]
	case 1:
		return "### feed checkpoint " + gofakeit.UUID()
	default:
		return strings.Repeat("\xef\xbf\xbd", gofakeit.Number(3, 12))
	}
}
