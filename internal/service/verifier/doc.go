// Package verifier checks packed artifacts before they are released.
//
// The gates run in a fixed order and each one is fatal:
//   - the staged and the packed bootstrap both report the expected version;
//   - the configured static assets exist in the packed app;
//   - on darwin, the code signature of the bundle is accepted by the gatekeeper;
//   - the packed executable starts and exits cleanly.
//
// On a linux host without DISPLAY the smoke test runs inside an Xvfb display
// that is released however the test ends. Processes the smoke test left in
// its own process group are killed afterwards; nothing else on the host is touched.
package verifier
