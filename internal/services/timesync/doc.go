// Package timesync keeps a corrected clock on hosts whose system time
// drifts (mobile devices, suspended VMs).
//
// It queries an ordered list of NTP servers, records the offset between
// reference and local time, and exposes Now() as local time plus that
// offset. Sync failure is a logged degradation: the bot keeps running on
// uncorrected local time. Around daylight-saving transitions the sync
// interval is halved.
package timesync
