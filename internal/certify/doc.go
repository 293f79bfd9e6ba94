// Package certify mints and revokes certification records for refurbished
// items. Serials come from the QCRT counter namespace and are never reused;
// revoking a certification leaves its row in place and flags it, so a replaced
// certificate always gets a fresh serial.
package certify
