// Package pool
// Author: momentics <momentics@gmail.com>
//
// Buffer pooling for outbound payload copies. Every buffer taken for a send
// is accounted until the loop releases it, so leaks show up in Stats.
package pool
