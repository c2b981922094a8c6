package cmd

import (
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
)

var usageStatsURL = "http://collector.singer.io/i"

// sendUsageStats fires an anonymous usage event in the background. Failures are only logged.
func sendUsageStats(version string) {
	params := url.Values{}
	params.Set("e", "se")
	params.Set("aid", "singer")
	params.Set("se_ca", "target-csv")
	params.Set("se_ac", "open")
	params.Set("se_la", version)
	endpoint := usageStatsURL + "?" + params.Encode()

	go func() {
		client := http.Client{Timeout: 10 * time.Second}
		resp, err := client.Get(endpoint)
		if err != nil {
			log.WithFields(log.Fields{"Error": err}).Debug("collection request failed")
			return
		}
		resp.Body.Close()
	}()
}
