package redis

import "fmt"

// Key construction helpers for the publisher status mirror

// LatestReadingKey returns the key holding the last published payload (string)
// Pattern: sensor:{site}:{sensor}:latest
func LatestReadingKey(site, sensor string) string {
	return fmt.Sprintf("sensor:%s:%s:latest", site, sensor)
}

// StatusKey returns the key for publisher status fields (hash)
// Pattern: meta:publisher:{site}:{sensor}
func StatusKey(site, sensor string) string {
	return fmt.Sprintf("meta:publisher:%s:%s", site, sensor)
}
