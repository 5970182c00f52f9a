// Package config defines the release settings of a workspace and provides
// helpers to load, validate and save them in YAML format.
//
// Every external tool the pipeline runs is described by a Tool template, so a
// workspace can swap yarn for npm or point the bundler at a local binary
// without code changes. A missing settings file means the defaults.
package config
