package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimestampArithmetic(t *testing.T) {
	ts := Timestamp(1000)

	assert.Equal(t, Timestamp(1060), ts.Add(Seconds(60)))
	assert.Equal(t, Timestamp(940), ts.Add(Seconds(-60)))
	assert.Equal(t, Seconds(60), ts.Add(Seconds(60)).Sub(ts))

	assert.True(t, ts.Before(ts.Add(1)))
	assert.False(t, ts.Before(ts))
	assert.True(t, ts.Add(1).After(ts))
	assert.False(t, ts.After(ts))
}

func TestMinTimestamp(t *testing.T) {
	assert.Equal(t, Timestamp(5), MinTimestamp(5, 10))
	assert.Equal(t, Timestamp(5), MinTimestamp(10, 5))
	assert.Equal(t, Timestamp(7), MinTimestamp(7, 7))
}

func TestTimeConversion(t *testing.T) {
	ts := Timestamp(1690000000)
	assert.Equal(t, time.Unix(1690000000, 0).UTC(), ts.Time())
	assert.Equal(t, 30*time.Second, Seconds(30).Std())
	assert.Equal(t, int64(30), Seconds(30).Seconds())
}

func TestCeilTo(t *testing.T) {
	step := Seconds(5)

	assert.Equal(t, Seconds(30), Seconds(30).CeilTo(step))
	assert.Equal(t, Seconds(30), Seconds(26).CeilTo(step))
	assert.Equal(t, Seconds(5), Seconds(1).CeilTo(step))
	assert.Equal(t, Seconds(0), Seconds(0).CeilTo(step))
	assert.Equal(t, Seconds(0), Seconds(-3).CeilTo(step))

	assert.Panics(t, func() { Seconds(10).CeilTo(0) })
}
