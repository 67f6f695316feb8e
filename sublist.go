package neurobus

import "sort"

// sublist is an id-ordered collection of subscriptions, adapted from the
// teacher's sublist (github.com/lomik/hub): insertion and removal use
// binary search to keep the backing slice sorted by SubscriptionID, which
// also happens to be each subscription's insertion order (ids are assigned
// from a single monotonic counter). That makes sublist's natural iteration
// order exactly the stable tie-break order find_matches needs before the
// priority sort is applied.
type sublist struct {
	lst []*Subscription
}

// add inserts s while maintaining ascending-id order.
func (sl *sublist) add(s *Subscription) {
	idx := sort.Search(len(sl.lst), func(i int) bool {
		return sl.lst[i].id >= s.id
	})

	sl.lst = append(sl.lst, nil)
	if idx < len(sl.lst)-1 {
		copy(sl.lst[idx+1:], sl.lst[idx:])
	}
	sl.lst[idx] = s
}

// remove deletes the subscription with the given id, if present.
func (sl *sublist) remove(id SubscriptionID) bool {
	idx := sl.find(id)
	if idx < 0 {
		return false
	}
	copy(sl.lst[idx:], sl.lst[idx+1:])
	sl.lst = sl.lst[:len(sl.lst)-1]
	return true
}

// find returns the index of id, or -1 if absent.
func (sl *sublist) find(id SubscriptionID) int {
	idx := sort.Search(len(sl.lst), func(i int) bool {
		return sl.lst[i].id >= id
	})
	if idx < len(sl.lst) && sl.lst[idx].id == id {
		return idx
	}
	return -1
}

// len returns the number of subscriptions in the list.
func (sl *sublist) len() int {
	if sl == nil {
		return 0
	}
	return len(sl.lst)
}

// snapshot returns a copy of the backing slice in ascending-id (insertion)
// order, safe for the caller to sort or iterate without holding the
// registry's lock.
func (sl *sublist) snapshot() []*Subscription {
	if sl == nil || len(sl.lst) == 0 {
		return nil
	}
	cp := make([]*Subscription, len(sl.lst))
	copy(cp, sl.lst)
	return cp
}

// sortByPriorityStable sorts subs by descending priority, breaking ties by
// ascending subscription id (the §4.B contract: ties broken by insertion
// order). Ties are broken on id explicitly rather than by relying on the
// slice's incoming order, since callers build subs by concatenating more
// than one id-ordered source (e.g. exact then wildcard matches), and that
// concatenation is not itself globally id-ordered.
func sortByPriorityStable(subs []*Subscription) {
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].priority != subs[j].priority {
			return subs[i].priority > subs[j].priority
		}
		return subs[i].id < subs[j].id
	})
}
