// Package inject rewrites outbound HTML for attribution: it embeds the
// 1x1 open-tracking pixel and replaces hyperlink targets with redirect
// URLs that resolve back to the original destination at click time.
//
// Rewriting is content-preserving. Only href attribute values change;
// every other byte of the input markup passes through untouched. Links
// that must never be wrapped (mailto:, tel:, fragments, unsubscribe
// URLs, and other non-navigational schemes) are left alone.
package inject
