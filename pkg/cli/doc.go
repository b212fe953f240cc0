// Package cli implements beacon-cli, the administrative command line for a
// beacon deployment.
//
// # Commands
//
// send: post a synthetic event to a running API
//
//	beacon-cli send --step deploy --status failure --os-name Ubuntu
//
// stats: print the headline report for the last 7, 30 or 90 days, or all time
//
//	beacon-cli stats --range 7
//	beacon-cli stats --range all --json
//
// clear: delete every stored event from the configured store
//
//	beacon-cli clear --config /etc/beacon/config.yaml --yes
//
// webhook-test: send a ping event to every configured webhook endpoint
//
//	BEACON_WEBHOOK_URLS=https://hooks.example.com/x beacon-cli webhook-test
//
// send and stats talk to the API at --api-url (default BEACON_API_URL or
// http://localhost:9999). clear and webhook-test read the same config file
// and BEACON_* variables as the server.
package cli
