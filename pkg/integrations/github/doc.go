// Package github lists repository stargazers through the GitHub REST API.
//
// # Usage
//
//	hc := github.NewHTTPClient(ctx, os.Getenv("GITHUB_TOKEN"), 10*time.Second)
//	client := github.NewClient(hc, "")
//
//	page, err := client.Stargazers(ctx, "Ivy-Interactive", "Ivy-Framework", 1, 100)
//
// Requests use the star media type so each entry carries the time the star
// was given. Pagination is 1-based and ends at the first empty page;
// [Client.Roster] adapts the client to the roster reconciler's Source.
//
// # Authentication
//
// A personal access token is optional but recommended. Without one the API
// allows 60 requests/hour, which is roughly 6000 stargazers per run at 100 per
// page. [NewHTTPClient] injects the token through golang.org/x/oauth2.
//
// # Validation
//
// [ParseRepoRef] splits and validates "owner/repo" project references.
package github
