package canon

import "testing"

func TestHash12Fixtures(t *testing.T) {
	if got := Hash12(""); got != EmptyHash {
		t.Errorf("Hash12(\"\") = %q, want %q", got, EmptyHash)
	}
	const in = "551d0f,551d25,551d11"
	const want = "aae71e8db6d7"
	if got := Hash12(in); got != want {
		t.Errorf("Hash12(%q) = %q, want %q", in, got, want)
	}
}

func TestIsGreaseCoversAllSixteen(t *testing.T) {
	want := []uint16{
		0x0a0a, 0x1a1a, 0x2a2a, 0x3a3a, 0x4a4a, 0x5a5a, 0x6a6a, 0x7a7a,
		0x8a8a, 0x9a9a, 0xaaaa, 0xbaba, 0xcaca, 0xdada, 0xeaea, 0xfafa,
	}
	for _, v := range want {
		if !IsGrease(v) {
			t.Errorf("IsGrease(0x%04x) = false, want true", v)
		}
	}
	if IsGrease(0x1301) {
		t.Errorf("IsGrease(0x1301) = true, want false")
	}
}

func TestFilterGreaseIdempotent(t *testing.T) {
	in := []uint16{0x1301, 0x0a0a, 0x1302, 0x2a2a, 0x1303}
	once := FilterGrease(in)
	twice := FilterGrease(once)
	if len(once) != 3 {
		t.Fatalf("FilterGrease once = %v, want 3 elements", once)
	}
	if len(once) != len(twice) {
		t.Fatalf("FilterGrease not idempotent: once=%v twice=%v", once, twice)
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Fatalf("FilterGrease not idempotent at %d: %v vs %v", i, once, twice)
		}
	}
}

func TestArrangeSortedIsPermutationInvariant(t *testing.T) {
	a := Arrange([]string{"1303", "1301", "1302"}, Sorted)
	b := Arrange([]string{"1302", "1303", "1301"}, Sorted)
	if Join(a) != Join(b) {
		t.Errorf("Arrange(Sorted) not permutation-invariant: %v vs %v", a, b)
	}
	if Join(a) != "1301,1302,1303" {
		t.Errorf("Arrange(Sorted) = %v", a)
	}
}

func TestArrangeOriginalPreservesOrder(t *testing.T) {
	in := []string{"1303", "1301", "1302"}
	got := Arrange(in, Original)
	if Join(got) != Join(in) {
		t.Errorf("Arrange(Original) = %v, want %v", got, in)
	}
}

func TestHexToken(t *testing.T) {
	if got := HexToken(0x1301); got != "1301" {
		t.Errorf("HexToken(0x1301) = %q", got)
	}
	if got := HexToken(0x000a); got != "000a" {
		t.Errorf("HexToken(0x000a) = %q", got)
	}
}
