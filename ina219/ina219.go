package ina219

// based on: https://www.waveshare.com/wiki/UPS_Module_3S

const (
	_REG_CONFIG       uint8 = 0x00
	_REG_SHUNTVOLTAGE uint8 = 0x01
	_REG_BUSVOLTAGE   uint8 = 0x02
	_REG_POWER        uint8 = 0x03
	_REG_CURRENT      uint8 = 0x04
	_REG_CALIBRATION  uint8 = 0x05
)

type BusVoltageRange uint16

const (
	RANGE_16V BusVoltageRange = 0x00
	RANGE_32V BusVoltageRange = 0x01
)

type Gain uint16

const (
	DIV_1_40MV  Gain = 0x00 // 40 mV shunt range
	DIV_2_80MV  Gain = 0x01
	DIV_4_160MV Gain = 0x02
	DIV_8_320MV Gain = 0x03 // 320 mV shunt range
)

type ADCResolution uint16

const (
	ADCRES_9BIT_1S    ADCResolution = 0x00 // 84us
	ADCRES_12BIT_1S   ADCResolution = 0x03 // 532us
	ADCRES_12BIT_32S  ADCResolution = 0x0D // 17.02ms
	ADCRES_12BIT_128S ADCResolution = 0x0F // 68.10ms
)

type Mode uint16

const (
	POWERDOWN            Mode = 0x00
	SANDBVOLT_TRIGGERED  Mode = 0x03
	SANDBVOLT_CONTINUOUS Mode = 0x07
)

const ADDRESS_DEFAULT uint8 = 0x41

type Bus interface {
	ReadWord(address uint8, offset uint8) (uint16, error)
	WriteWord(address uint8, offset uint8, data uint16) error
}

type INA219 struct {
	bus        Bus
	address    uint8
	config     uint16
	calValue   uint16
	currentLSB float64 // mA per bit
	powerLSB   float64 // W per bit
}

// New configures the chip for 32 V and 2 A over a 0.1 ohm shunt.
func New(bus Bus, address uint8) (*INA219, error) {
	i := &INA219{
		bus:     bus,
		address: address,
	}
	return i, i.setCalibration32Volts2Amps()
}

func (i *INA219) setCalibration32Volts2Amps() error {
	// Current LSB 100 uA, Cal = trunc(0.04096 / (0.0001 * 0.1)), power LSB 20 * current LSB.
	i.currentLSB = 0.1
	i.calValue = 4096
	i.powerLSB = 0.002

	if err := i.bus.WriteWord(i.address, _REG_CALIBRATION, i.calValue); err != nil {
		return err
	}
	i.config = Config(RANGE_32V, DIV_8_320MV, ADCRES_12BIT_32S, ADCRES_12BIT_32S, SANDBVOLT_CONTINUOUS)
	return i.bus.WriteWord(i.address, _REG_CONFIG, i.config)
}

func Config(busRange BusVoltageRange, gain Gain, busADC, shuntADC ADCResolution, mode Mode) uint16 {
	return uint16(busRange)<<13 |
		uint16(gain)<<11 |
		uint16(busADC)<<7 |
		uint16(shuntADC)<<3 |
		uint16(mode)
}

// ReadShuntVoltage returns volts. Negative values mean the battery is discharging.
func (i *INA219) ReadShuntVoltage() (float64, error) {
	if err := i.bus.WriteWord(i.address, _REG_CALIBRATION, i.calValue); err != nil {
		return 0, err
	}
	value, err := i.bus.ReadWord(i.address, _REG_SHUNTVOLTAGE)
	if err != nil {
		return 0, err
	}
	return float64(int16(value)) * 0.00001, nil
}

func (i *INA219) ReadBusVoltage() (float64, error) {
	if err := i.bus.WriteWord(i.address, _REG_CALIBRATION, i.calValue); err != nil {
		return 0, err
	}
	value, err := i.bus.ReadWord(i.address, _REG_BUSVOLTAGE)
	if err != nil {
		return 0, err
	}
	return float64(value>>3) * 0.004, nil
}

// ReadCurrent returns amperes.
func (i *INA219) ReadCurrent() (float64, error) {
	value, err := i.bus.ReadWord(i.address, _REG_CURRENT)
	if err != nil {
		return 0, err
	}
	return float64(int16(value)) * i.currentLSB * 0.001, nil
}

// ReadPower returns watts.
func (i *INA219) ReadPower() (float64, error) {
	value, err := i.bus.ReadWord(i.address, _REG_POWER)
	if err != nil {
		return 0, err
	}
	return float64(value) * i.powerLSB, nil
}
