package auth

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestKeyedLimiterIsolatesKeys(t *testing.T) {
	Convey("Given a keyed limiter with capacity 1 per key", t, func() {
		kl := NewKeyedLimiter(1, time.Second)

		Convey("Then one key being exhausted does not affect another", func() {
			So(kl.Allow("1.2.3.4"), ShouldBeTrue)
			So(kl.Allow("1.2.3.4"), ShouldBeFalse)
			So(kl.Allow("5.6.7.8"), ShouldBeTrue)
		})
	})
}
