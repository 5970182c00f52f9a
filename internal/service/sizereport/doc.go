// Package sizereport measures how much disk space every packed subpackage takes.
package sizereport
