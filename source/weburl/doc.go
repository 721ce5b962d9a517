// Package weburl guards outbound fetches of problem descriptions hosted on
// the web.
//
// ValidateURL rejects anything that is not a public https URL before a
// request is built. NewClient returns an http.Client whose dialer re-checks
// every resolved address with IsPrivateIP, so a public name that resolves to
// a private address is still refused, and whose redirect hook applies the
// same rules to each hop.
//
// Blocked ranges:
//
//   - IPv4 private ranges (10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16)
//   - loopback, link-local and unspecified addresses
//   - CGNAT (100.64.0.0/10)
//   - IPv6 unique local (fc00::/7) and link-local (fe80::/10)
//   - IPv4-mapped IPv6 forms of all of the above
package weburl
