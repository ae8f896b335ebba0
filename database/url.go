package database

import (
	"fmt"
	"strings"
)

// ConstructDatabaseURL joins the deployment's base URL with the database
// name the shop process is assigned. Shops share one Postgres cluster, so
// DATABASE_URL carries only host and credentials and DATABASE_NAME selects
// the database; when DATABASE_NAME is empty the base URL is used verbatim.
// sslmode=disable is appended unless the URL already picks an sslmode.
func ConstructDatabaseURL(baseURL, databaseName string) string {
	if databaseName == "" {
		return baseURL
	}

	base := strings.TrimRight(baseURL, "/")

	var url string
	if host, params, found := strings.Cut(base, "?"); found {
		url = fmt.Sprintf("%s/%s?%s", host, databaseName, params)
	} else {
		url = fmt.Sprintf("%s/%s", base, databaseName)
	}

	if !strings.Contains(url, "sslmode=") {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "sslmode=disable"
	}

	return url
}
