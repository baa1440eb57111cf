// Package api holds typed calls to the EcoChallenge resources used by the apps:
// the signed-in user's profile, goals, goal templates, waste subcategories, and
// waste logs.
//
// Every call goes through an [ecoauth.Fetcher], normally the shared
// *ecoauth.Manager, which owns credentials and the refresh-and-retry path. List
// calls return every page via [ecoauth.FetchAllPages]. A non-2xx answer becomes
// an *ecoauth.APIError carrying the backend's detail message.
//
// # What this package must NOT do
//
//   - Touch tokens or the credential store.
//   - Cache responses.
package api
