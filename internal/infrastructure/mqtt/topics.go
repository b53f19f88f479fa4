package mqtt

import "strings"

// StatusTopic returns the topic a charger status value is published on.
//
// Example: StatusTopic("TWC", "twc-garage", "chargeNowAmps")
// returns "TWC/twc-garage/chargeNowAmps". A trailing slash on the prefix
// is dropped so the separator is never doubled.
func StatusTopic(prefix, deviceID, key string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + deviceID + "/" + key
}
