// Package archive defines the request-scoped types, collaborator interfaces and
// error taxonomy shared by the page pipeline, the fetchers, the storage
// backends, the bookmark client and the HTTP layer.
package archive
