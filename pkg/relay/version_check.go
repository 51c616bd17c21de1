package relay

import (
	"net/http"
	"strings"

	"golang.org/x/mod/semver"
)

const (
	RequiredClientVersion string = "v0.1.0"
	ClientVersionHeader   string = "X-Seq-Client-Version"
)

func CheckClientVersion(toCheck string) bool {
	if !strings.HasPrefix(toCheck, "v") {
		toCheck = "v" + toCheck
	}
	if !semver.IsValid(toCheck) {
		return false
	}
	res := semver.Compare(toCheck, RequiredClientVersion)
	return res >= 0
}

// VersionGate rejects clients announcing a version older than RequiredClientVersion.
// Clients without version header are accepted.
func VersionGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := r.Header.Get(ClientVersionHeader); v != "" && !CheckClientVersion(v) {
			http.Error(w, "client version "+v+" not supported, required: "+
				RequiredClientVersion, http.StatusUpgradeRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}
