// Package releng holds the release engineering pieces: reproducible
// archive builds from git treeishes and RPM-style EVR version handling
// with PEP 440 rendering for the python side of a release.
package releng
