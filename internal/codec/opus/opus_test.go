package opus

import "testing"

type fakeEncoder struct {
	bitrate   int
	fec, dtx  bool
	lossPct   int
	lastInput []int16
}

func (f *fakeEncoder) Encode(pcm []int16, data []byte) (int, error) {
	f.lastInput = append([]int16(nil), pcm...)
	// A trivial "encoding": just write the frame length as one byte.
	data[0] = byte(len(pcm))
	return 1, nil
}
func (f *fakeEncoder) SetBitrate(b int) error         { f.bitrate = b; return nil }
func (f *fakeEncoder) SetDTX(v bool) error            { f.dtx = v; return nil }
func (f *fakeEncoder) SetInBandFEC(v bool) error      { f.fec = v; return nil }
func (f *fakeEncoder) SetPacketLossPerc(p int) error  { f.lossPct = p; return nil }

func TestNewEncoderConfiguresExpectedDefaults(t *testing.T) {
	fe := &fakeEncoder{}
	if _, err := newEncoderWithBackend(fe); err != nil {
		t.Fatalf("newEncoderWithBackend: %v", err)
	}
	if fe.bitrate != defaultBitrate || !fe.fec || !fe.dtx || fe.lossPct != expectedLossPct {
		t.Fatalf("unexpected config: %+v", fe)
	}
}

func TestEncodeRejectsWrongFrameSize(t *testing.T) {
	enc, _ := newEncoderWithBackend(&fakeEncoder{})
	if _, err := enc.Encode(make([]int16, FrameSize-1)); err == nil {
		t.Fatal("expected FrameSizeError")
	}
}

func TestEncodeAcceptsExactFrameSize(t *testing.T) {
	fe := &fakeEncoder{}
	enc, _ := newEncoderWithBackend(fe)
	out, err := enc.Encode(make([]int16, FrameSize))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(out) != 1 || len(fe.lastInput) != FrameSize {
		t.Fatalf("unexpected encode result: out=%v input_len=%d", out, len(fe.lastInput))
	}
}

type fakeDecoder struct {
	plcCalled bool
	fecCalled bool
}

func (f *fakeDecoder) Decode(data []byte, pcm []int16) (int, error) {
	if data == nil {
		f.plcCalled = true
	}
	return len(pcm), nil
}
func (f *fakeDecoder) DecodeFEC(data []byte, pcm []int16) error {
	f.fecCalled = true
	return nil
}

func TestDecodePLCCallsBackendWithNilPacket(t *testing.T) {
	fd := &fakeDecoder{}
	d := &Decoder{backend: fd}
	pcm, err := d.DecodePLC()
	if err != nil {
		t.Fatalf("DecodePLC: %v", err)
	}
	if !fd.plcCalled || len(pcm) != FrameSize {
		t.Fatalf("expected PLC path, got plcCalled=%v len=%d", fd.plcCalled, len(pcm))
	}
}

func TestDecodeFECCallsBackend(t *testing.T) {
	fd := &fakeDecoder{}
	d := &Decoder{backend: fd}
	pcm, err := d.DecodeFEC([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("DecodeFEC: %v", err)
	}
	if !fd.fecCalled || len(pcm) != FrameSize {
		t.Fatalf("expected FEC path, got fecCalled=%v len=%d", fd.fecCalled, len(pcm))
	}
}
