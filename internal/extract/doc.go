// Package extract applies an adapter's extraction rules to a fetched document
// and yields one raw field map per listing.
//
// Items are processed one at a time as the caller ranges over Records.All.
// A failure inside one item is logged with a short snippet of the item and
// the item is dropped; it never stops the remaining items.
package extract
