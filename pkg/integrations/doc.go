// Package integrations provides HTTP clients for the external sources pkgpulse
// reconciles against.
//
// # Overview
//
// Each source has its own subpackage:
//
//   - [nuget]: NuGet v3 registration index and search endpoints
//   - [github]: GitHub stargazer listing
//
// Subpackages decode wire formats and adapt them to the abstract types the
// core consumes; they contain no reconciliation logic.
//
// # Shared Infrastructure
//
// The [Client] type provides the shared JSON GET used by every subpackage.
// Status codes map to [ErrNotFound] and [ErrNetwork]; malformed bodies map to
// [ErrDecode]. Clients never retry: a root-level failure is fatal for the
// caller and a sub-page failure is recorded as a soft failure by the caller.
//
// [nuget]: github.com/matzehuels/pkgpulse/pkg/integrations/nuget
// [github]: github.com/matzehuels/pkgpulse/pkg/integrations/github
package integrations
