package loadgen

import (
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
)

// Shared vocabularies for synthetic proxy log generation.

var URLCategories = []string{
	"Business", "News", "Social Networking", "Streaming Media",
	"Web Search", "Shopping", "Technology", "Webmail", "File Sharing",
	"DNS Over HTTPS", "Advertising",
}

var ThreatCategories = []string{
	"Phishing", "Malware Site", "Botnet Callback", "Ransomware",
	"Cryptomining", "Data Leakage", "Adware/Spyware", "Suspicious Content",
}

var BenignHosts = []string{
	"www.office.com", "mail.google.com", "cdn.jsdelivr.net",
	"www.wikipedia.org", "api.slack.com", "github.com",
	"www.salesforce.com", "teams.microsoft.com", "update.microsoft.com",
	"www.nytimes.com",
}

var MaliciousHosts = []string{
	"login-secure-portal.xyz", "cdn-update-check.biz", "tracker.adsrvc.info",
	"files.dropzone-share.top", "beacon.c2relay.cc", "pay.invoice-view.click",
}

var Departments = []string{
	"Engineering", "Finance", "Sales", "HR", "Legal", "Marketing", "IT",
}

var Locations = []string{
	"New York", "London", "Bangalore", "Singapore", "Austin", "Berlin",
}

var Actions = []string{"allowed", "blocked"}

// RandomUser returns a corporate-looking email address. Deterministic
// under gofakeit.Seed.
func RandomUser() string {
	return fmt.Sprintf("%s.%s@example.com",
		gofakeit.FirstName(), gofakeit.LastName())
}

func Pick(values []string) string {
	return values[gofakeit.Number(0, len(values)-1)]
}
