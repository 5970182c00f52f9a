// Package stripper removes what the packed application does not need at
// runtime: TypeScript sources outside node_modules, bin folders and the
// development copy of the runtime app. It then rewrites requires of scoped
// workspace packages (which resolve through development symlinks) into
// literal relative paths, so the packed tree has no dangling links.
package stripper
