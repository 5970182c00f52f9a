// Package release holds the domain model of a desktop release run: platform
// ids, the immutable BuildContext, the staged manifest, the disk usage report,
// the packaging outcome and the error kinds every stage reports with.
package release
