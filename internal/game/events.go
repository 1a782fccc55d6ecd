package game

// SimEventType classifies a detected interaction within a micro-step.
type SimEventType uint8

const (
	EventAttack SimEventType = iota
	EventCollision
	EventDesertion
)

func (t SimEventType) String() string {
	switch t {
	case EventAttack:
		return "attack"
	case EventCollision:
		return "collision"
	case EventDesertion:
		return "desertion"
	default:
		return "unknown"
	}
}

// SimEvent is a detected interaction at a quantized time within [0, 1] of
// the current micro-step.
type SimEvent struct {
	Type SimEventType
	ID1  EntityID
	ID2  EntityID
	Time float64
}

// simEventKey identifies an event up to swapping its endpoints, so the
// symmetric pair (A,B)/(B,A) deduplicates in the detection set.
type simEventKey struct {
	typ      SimEventType
	low, high EntityID
	time     float64
}

func (e SimEvent) key() simEventKey {
	low, high := e.ID1, e.ID2
	if high.less(low) {
		low, high = high, low
	}
	return simEventKey{typ: e.Type, low: low, high: high, time: e.Time}
}

// eventSet is the deduplicating container for detected events.
type eventSet map[simEventKey]SimEvent

func (s eventSet) add(e SimEvent) {
	key := e.key()
	if _, ok := s[key]; !ok {
		s[key] = e
	}
}

// less orders events by (time, type, id1, id2). The reference relied on
// hash-set iteration order inside a batch, which is not reproducible across
// implementations; a total order keeps transcripts bitwise stable.
func (e SimEvent) less(other SimEvent) bool {
	if e.Time != other.Time {
		return e.Time < other.Time
	}
	if e.Type != other.Type {
		return e.Type < other.Type
	}
	if e.ID1 != other.ID1 {
		return e.ID1.less(other.ID1)
	}
	return e.ID2.less(other.ID2)
}

// mightAttack is the cheap reachability filter for weapon range.
func mightAttack(distance float64, s1, s2 *Ship, weaponRadius float64) bool {
	return distance <= s1.Velocity.Magnitude()+s2.Velocity.Magnitude()+weaponRadius
}

// mightCollide is the cheap reachability filter for hull contact.
func mightCollide(distance float64, s1, s2 *Ship) bool {
	return distance <= s1.Velocity.Magnitude()+s2.Velocity.Magnitude()+s1.Radius+s2.Radius
}

// findShipEvents inspects one candidate ship pair and adds any Attack or
// Collision events occurring within this micro-step.
func (e *Engine) findShipEvents(set eventSet, id1, id2 EntityID, s1, s2 *Ship) {
	distance := s1.Location.DistanceTo(s2.Location)

	if id1.Player != id2.Player && mightAttack(distance, s1, s2, e.constants.WeaponRadius) {
		attackRadius := s1.Radius + s2.Radius + e.constants.WeaponRadius
		hit, t := ShipCollisionTime(attackRadius, s1, s2)
		if hit && t >= 0 && t <= 1 {
			set.add(SimEvent{
				Type: EventAttack,
				ID1:  id1, ID2: id2,
				Time: RoundEventTime(t, e.constants.EventTimePrecision),
			})
		} else if distance < attackRadius {
			set.add(SimEvent{Type: EventAttack, ID1: id1, ID2: id2, Time: 0})
		}
	}

	if id1 != id2 && mightCollide(distance, s1, s2) {
		collisionRadius := s1.Radius + s2.Radius
		hit, t := ShipCollisionTime(collisionRadius, s1, s2)
		if hit {
			if t >= 0 && t <= 1 {
				set.add(SimEvent{
					Type: EventCollision,
					ID1:  id1, ID2: id2,
					Time: RoundEventTime(t, e.constants.EventTimePrecision),
				})
			}
		} else if distance < collisionRadius {
			// Overlapping ships with no solver contact: the ships
			// should already be dead. The state is corrupt.
			panic("collision solver reported no contact for overlapping ships " +
				id1.String() + " and " + id2.String())
		}
	}
}
