package redisx

import "fmt"

const ns = "garasje:v1"

func KeySpots(date string) string {
	return fmt.Sprintf("%s:spots:%s", ns, date)
}

func KeyAvailability(date string) string {
	return fmt.Sprintf("%s:spots:%s:availability", ns, date)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelSpotsChanged() string {
	return ns + ":spots:changed"
}
