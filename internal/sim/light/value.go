package light

// MaxLevel is the top of the 4-bit light band.
const MaxLevel = 15

// Level packs sun light (high nibble) and block light (low nibble).
type Level uint8

func MakeLevel(sun, block uint8) Level {
	return Level(clamp(sun)<<4 | clamp(block))
}

func (l Level) Sun() uint8   { return uint8(l) >> 4 }
func (l Level) Block() uint8 { return uint8(l) & 0x0F }

func (l Level) Max() uint8 {
	if s, b := l.Sun(), l.Block(); s > b {
		return s
	}
	return l.Block()
}

func (l Level) WithSun(v uint8) Level   { return MakeLevel(v, l.Block()) }
func (l Level) WithBlock(v uint8) Level { return MakeLevel(l.Sun(), v) }

// Tint packs band-limited saturation (high nibble) and hue (low nibble).
type Tint uint8

func MakeTint(hue, sat uint8) Tint {
	return Tint(clamp(sat)<<4 | clamp(hue))
}

func (t Tint) Hue() uint8        { return uint8(t) & 0x0F }
func (t Tint) Saturation() uint8 { return uint8(t) >> 4 }

// HSV is a band-limited light colour; every channel is 0..15.
type HSV struct {
	H, S, V uint8
}

func (c HSV) Tint() Tint   { return MakeTint(c.H, c.S) }
func (c HSV) IsZero() bool { return c.V == 0 }

func clamp(v uint8) uint8 {
	if v > MaxLevel {
		return MaxLevel
	}
	return v
}
