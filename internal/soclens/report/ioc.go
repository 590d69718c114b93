package report

import (
	"net/url"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// ExtractIOCs collects indicators from finding evidence plus the events
// tied to the implicated entities. Exact-string dedup, sorted output.
func ExtractIOCs(findings []model.Finding, events []model.Event) model.IOCSet {
	var domains, urls, ips, users []string

	implicatedIPs := make(map[string]struct{})
	implicatedUsers := make(map[string]struct{})
	implicatedHosts := make(map[string]struct{})

	for _, f := range findings {
		for _, ref := range findingEntities(f) {
			switch ref.field {
			case "user_email":
				users = append(users, ref.value)
				implicatedUsers[ref.value] = struct{}{}
			case "client_ip":
				ips = append(ips, ref.value)
				implicatedIPs[ref.value] = struct{}{}
			case "dest_host":
				domains = append(domains, ref.value)
				implicatedHosts[ref.value] = struct{}{}
			}
		}
	}

	for i := range events {
		evt := &events[i]
		if !eventImplicated(evt, implicatedUsers, implicatedIPs, implicatedHosts) {
			continue
		}
		if evt.DestHost != nil && *evt.DestHost != "" {
			domains = append(domains, *evt.DestHost)
		}
		if evt.URL != nil && *evt.URL != "" {
			urls = append(urls, *evt.URL)
			if host := urlHost(*evt.URL); host != "" {
				domains = append(domains, host)
			}
		}
		if evt.ClientIP != nil && *evt.ClientIP != "" {
			ips = append(ips, *evt.ClientIP)
		}
		if evt.ServerIP != nil && *evt.ServerIP != "" {
			ips = append(ips, *evt.ServerIP)
		}
		if evt.UserEmail != nil && *evt.UserEmail != "" {
			users = append(users, *evt.UserEmail)
		}
	}

	return model.IOCSet{
		Domains: dedupSorted(domains),
		URLs:    dedupSorted(urls),
		IPs:     dedupSorted(ips),
		Users:   dedupSorted(users),
	}
}

func eventImplicated(evt *model.Event, users, ips, hosts map[string]struct{}) bool {
	if evt.UserEmail != nil {
		if _, ok := users[*evt.UserEmail]; ok {
			return true
		}
	}
	if evt.ClientIP != nil {
		if _, ok := ips[*evt.ClientIP]; ok {
			return true
		}
	}
	if evt.DestHost != nil {
		if _, ok := hosts[*evt.DestHost]; ok {
			return true
		}
	}
	return false
}

func urlHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
